package model

import "fmt"

// InvalidTransitionError is returned when an atom state transition is invalid.
type InvalidTransitionError struct {
	AtomID AtomID
	From   AtomState
	To     AtomState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid atom state transition: %s -> %s (atom %s)", e.From, e.To, e.AtomID)
}
