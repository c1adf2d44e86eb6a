package node

import (
	"fmt"
	"sync"
)

// Status is the module-side status reported through /state and guarded by
// the action-lock state machine.
type Status string

const (
	// StatusInit is the startup state; the status endpoint is reachable
	// while device initialization still runs in the background
	StatusInit Status = "INIT"

	// StatusIdle means the module is ready to accept one action
	StatusIdle Status = "IDLE"

	// StatusBusy means an action is in flight; further acquire attempts
	// are rejected with a conflict
	StatusBusy Status = "BUSY"

	// StatusError is terminal until an external restart
	StatusError Status = "ERROR"
)

// ConflictError rejects an acquire attempt while the module is not idle.
// It maps to HTTP 409 on the REST surface and to a busy frame on TCP.
type ConflictError struct {
	Status Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("module is not ready to accept actions: status %s", e.Status)
}

// State is the module's explicit status cell.  All transitions go through
// the acquire/release/fail methods under one mutex, which also gives the
// async startup task a well-defined publication point for concurrent
// readers of the status endpoint.
type State struct {
	mu     sync.Mutex
	status Status
	err    string
}

// NewState creates a state cell in INIT.
func NewState() *State {
	return &State{status: StatusInit}
}

// Status returns the current status and error message.
func (s *State) Status() (Status, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.err
}

// Ready publishes the INIT -> IDLE transition once startup completes.  It is
// a no-op in any other state (a startup failure may already have moved the
// module to ERROR).
func (s *State) Ready() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusInit {
		s.status = StatusIdle
	}
}

// Acquire performs the IDLE -> BUSY transition.  Any attempt while the
// module is not idle is rejected with a *ConflictError and leaves the state
// untouched.
func (s *State) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusIdle {
		return &ConflictError{Status: s.status}
	}
	s.status = StatusBusy
	return nil
}

// Release performs the BUSY -> IDLE transition.  It runs after the action
// handler returns, regardless of the handler's logical outcome.  Releasing
// from any other state is a no-op: an exception path has already moved the
// module to ERROR.
func (s *State) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusBusy {
		s.status = StatusIdle
	}
}

// Fail performs the * -> ERROR transition, recording the exception message.
func (s *State) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusError
	if err != nil {
		s.err = err.Error()
	}
}
