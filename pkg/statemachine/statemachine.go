// Package statemachine implements a small function-pointer state machine:
// states are functions that inspect their owner and return the next
// state. Tables use it to track where a hand stands between deals.
package statemachine

import (
	"sync"
)

// StateFn is one state. It runs against the owning entity and returns
// the state to move to, itself to stay, or nil to terminate.
type StateFn[T any] func(*T) StateFn[T]

// StateMachine holds the current state of one entity. Safe for
// concurrent use; the state functions themselves run unlocked.
type StateMachine[T any] struct {
	mu      sync.RWMutex
	owner   *T
	current StateFn[T]
}

// NewStateMachine starts a machine for owner in the initial state. The
// initial state does not run until the first Dispatch or Step.
func NewStateMachine[T any](owner *T, initial StateFn[T]) *StateMachine[T] {
	return &StateMachine[T]{owner: owner, current: initial}
}

// Dispatch moves the machine to fn, runs it once, and stores the state
// it returns. Dispatching nil terminates the machine.
func (sm *StateMachine[T]) Dispatch(fn StateFn[T]) {
	sm.mu.Lock()
	sm.current = fn
	sm.mu.Unlock()

	if fn == nil {
		return
	}
	next := fn(sm.owner)

	sm.mu.Lock()
	sm.current = next
	sm.mu.Unlock()
}

// Step runs the current state once, following its transition. A
// terminated machine stays terminated.
func (sm *StateMachine[T]) Step() {
	sm.Dispatch(sm.GetCurrentState())
}

// GetCurrentState returns the current state, nil once terminated.
func (sm *StateMachine[T]) GetCurrentState() StateFn[T] {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// SetState stores fn as the current state without running it.
func (sm *StateMachine[T]) SetState(fn StateFn[T]) {
	sm.mu.Lock()
	sm.current = fn
	sm.mu.Unlock()
}
