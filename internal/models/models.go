package models

import "time"

// MediaKind is what the remote API ultimately produces.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// InputKind describes what a model needs from the user before submission.
type InputKind string

const (
	InputText  InputKind = "text"
	InputImage InputKind = "image"
	InputBoth  InputKind = "both"
)

type CostType string

const (
	CostTypeFree CostType = "free"
	CostTypePaid CostType = "paid"
)

// CostOf maps the frozen free-vs-paid decision of a run to its cost type.
func CostOf(free bool) CostType {
	if free {
		return CostTypeFree
	}
	return CostTypePaid
}

// ModelSpec is an immutable catalog entry, loaded once at process start.
type ModelSpec struct {
	ID              string
	Name            string
	Description     string
	APIModel        string
	Endpoint        string
	Media           MediaKind
	Requires        InputKind
	Size            string
	DurationSeconds int
	Price           int
	FreeLimit       int
}

// RequiresImage reports whether the user has to attach an image before the
// prompt step.
func (m ModelSpec) RequiresImage() bool {
	return m.Requires == InputImage || m.Requires == InputBoth
}

// UserAccount holds the per-user quota counters and paid balance. Balance is
// in whole currency units and never goes negative.
type UserAccount struct {
	UserID     int64
	Balance    int
	Usage      map[string]int
	TotalSpent int
	CreatedAt  time.Time
}

// UsageOf returns the usage counter for a model id, zero when the model was
// never run.
func (a *UserAccount) UsageOf(modelID string) int {
	if a.Usage == nil {
		return 0
	}
	return a.Usage[modelID]
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
)

// PendingPayment tracks a topup from creation until confirmation. Confirming
// it is the only path that credits the ledger.
type PendingPayment struct {
	ID              string
	UserID          int64
	Amount          int
	Status          PaymentStatus
	ConfirmationURL string
	Demo            bool
	CreatedAt       time.Time
}
