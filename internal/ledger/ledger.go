package ledger

import (
	"errors"
	"fmt"

	"github.com/evolark/photogenbot/internal/models"
)

// ErrInsufficientFunds is returned by Debit when the balance cannot cover
// the amount. The account is left untouched.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Ledger exposes the atomic quota and balance operations. A debit is checked
// and applied under the store's per-call serialization, so two concurrent
// runs for one user cannot both pass the balance check.
//
// Usage is counted before submission and is not rolled back when a run later
// fails; a failed paid run is likewise not refunded.
type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// GetOrInit returns the account, creating a zero-balance record on first
// access.
func (l *Ledger) GetOrInit(userID int64) models.UserAccount {
	return l.store.Get(userID)
}

// HasFreeUse reports whether the user is still under the model's free quota.
func (l *Ledger) HasFreeUse(userID int64, spec models.ModelSpec) bool {
	account := l.store.Get(userID)
	return account.UsageOf(spec.ID) < spec.FreeLimit
}

// Debit atomically decrements the balance and increments total spent, or
// fails with ErrInsufficientFunds leaving no side effect.
func (l *Ledger) Debit(userID int64, amount int) error {
	if amount < 0 {
		return fmt.Errorf("negative debit amount: %d", amount)
	}
	return l.store.Update(userID, func(account *models.UserAccount) error {
		if account.Balance < amount {
			return ErrInsufficientFunds
		}
		account.Balance -= amount
		account.TotalSpent += amount
		return nil
	})
}

// RecordUsage increments the per-model counter. Called exactly once per run,
// after the debit (or immediately for a free run) and before submission.
func (l *Ledger) RecordUsage(userID int64, modelID string) {
	_ = l.store.Update(userID, func(account *models.UserAccount) error {
		account.Usage[modelID]++
		return nil
	})
}

// Credit increases the balance. Invoked by payment confirmation and the
// admin credit endpoint.
func (l *Ledger) Credit(userID int64, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("non-positive credit amount: %d", amount)
	}
	return l.store.Update(userID, func(account *models.UserAccount) error {
		account.Balance += amount
		return nil
	})
}

// Accounts returns a snapshot of every known account.
func (l *Ledger) Accounts() []models.UserAccount {
	return l.store.List()
}
