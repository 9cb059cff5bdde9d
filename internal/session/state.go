package session

import (
	"sync"
)

// Step is the position of a user's session in the generation flow.
type Step int

const (
	StepIdle Step = iota
	// StepAwaitingInput: a model is selected, waiting for the first input
	// (an image for image-seeded models, otherwise the prompt).
	StepAwaitingInput
	// StepAwaitingPrompt: the image arrived, waiting for the text prompt.
	StepAwaitingPrompt
	// StepProcessing: a run is in flight; new input is ignored until the
	// session returns to idle.
	StepProcessing
)

// State is the per-user mutable session record. Exactly one exists per user
// at a time; starting a new flow discards the previous one.
type State struct {
	ModelID         string
	Step            Step
	Prompt          string
	Image           []byte
	ImageURL        string
	Free            bool
	StatusMessageID int
}

// Manager serializes access to session state. Handlers and the user's own
// run are the only writers, and both go through these methods.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*State
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[int64]*State)}
}

// Get returns a copy of the user's session, idle when none exists.
func (m *Manager) Get(userID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.sessions[userID]; ok {
		return *st
	}
	return State{Step: StepIdle}
}

// Set replaces the user's session.
func (m *Manager) Set(userID int64, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[userID] = &st
}

// Reset puts the user back to idle.
func (m *Manager) Reset(userID int64) {
	m.Set(userID, State{Step: StepIdle})
}

// Mutate applies fn to the user's session under the manager lock and reports
// whether fn asked to keep the change.
func (m *Manager) Mutate(userID int64, fn func(*State) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[userID]
	if !ok {
		st = &State{Step: StepIdle}
		m.sessions[userID] = st
	}
	return fn(st)
}
