package ledger

import (
	"sync"
	"time"

	"github.com/evolark/photogenbot/internal/models"
)

// Store abstracts account state behind the ledger. Update must apply fn to
// the account as a single atomic step with respect to other calls for the
// same user; an error from fn leaves the account untouched.
type Store interface {
	Update(userID int64, fn func(*models.UserAccount) error) error
	Get(userID int64) models.UserAccount
	List() []models.UserAccount
}

// MemoryStore keeps accounts in process memory. Accounts are created lazily
// on first reference and never deleted.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[int64]*models.UserAccount
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[int64]*models.UserAccount),
		now:      time.Now,
	}
}

func (s *MemoryStore) init(userID int64) *models.UserAccount {
	account, ok := s.accounts[userID]
	if !ok {
		account = &models.UserAccount{
			UserID:    userID,
			Usage:     make(map[string]int),
			CreatedAt: s.now().UTC(),
		}
		s.accounts[userID] = account
	}
	return account
}

func (s *MemoryStore) Update(userID int64, fn func(*models.UserAccount) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.init(userID))
}

func (s *MemoryStore) Get(userID int64) models.UserAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.init(userID))
}

func (s *MemoryStore) List() []models.UserAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.UserAccount, 0, len(s.accounts))
	for _, account := range s.accounts {
		out = append(out, snapshot(account))
	}
	return out
}

// snapshot copies the account so callers never share the mutable map.
func snapshot(account *models.UserAccount) models.UserAccount {
	copied := *account
	copied.Usage = make(map[string]int, len(account.Usage))
	for k, v := range account.Usage {
		copied.Usage[k] = v
	}
	return copied
}
