package model

// AtomState represents the lifecycle state of an Atom.
type AtomState string

const (
	AtomStateUnscheduled AtomState = "UNSCHEDULED"
	AtomStateRunnable    AtomState = "RUNNABLE"
	AtomStateExecuting   AtomState = "EXECUTING"
	AtomStateCompleted   AtomState = "COMPLETED"
	AtomStateTimedOut    AtomState = "TIMED_OUT"
	AtomStateCancelled   AtomState = "CANCELLED"

	// Soft-atom states. Soft atoms never occupy a job slot; they resolve by
	// waiting on a semaphore instead of hardware dispatch.
	AtomStateWaitingSemaphore AtomState = "WAITING_SEMAPHORE"
	AtomStateSemaphoreTimeout AtomState = "SEMAPHORE_TIMEOUT"
)

// String returns the string representation of the atom state.
func (s AtomState) String() string {
	return string(s)
}

// IsTerminal returns true if the atom is in a final state.
func (s AtomState) IsTerminal() bool {
	switch s {
	case AtomStateCompleted, AtomStateTimedOut, AtomStateCancelled, AtomStateSemaphoreTimeout:
		return true
	}
	return false
}

// ValidAtomTransitions defines the allowed state transitions for hardware atoms.
var ValidAtomTransitions = map[AtomState][]AtomState{
	AtomStateUnscheduled: {AtomStateRunnable, AtomStateCancelled},
	AtomStateRunnable:    {AtomStateExecuting, AtomStateCancelled},
	AtomStateExecuting:   {AtomStateCompleted, AtomStateTimedOut, AtomStateCancelled},
}

// ValidSoftAtomTransitions defines the allowed state transitions for soft atoms.
var ValidSoftAtomTransitions = map[AtomState][]AtomState{
	AtomStateUnscheduled:      {AtomStateWaitingSemaphore, AtomStateCompleted, AtomStateCancelled},
	AtomStateWaitingSemaphore: {AtomStateCompleted, AtomStateCancelled, AtomStateSemaphoreTimeout},
}

// CanTransitionTo returns true if moving from the current state to next is
// valid for a hardware atom.
func (s AtomState) CanTransitionTo(next AtomState) bool {
	for _, allowed := range ValidAtomTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CanSoftTransitionTo returns true if moving from the current state to next is
// valid for a soft atom.
func (s AtomState) CanSoftTransitionTo(next AtomState) bool {
	for _, allowed := range ValidSoftAtomTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
