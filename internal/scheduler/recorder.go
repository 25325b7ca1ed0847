package scheduler

import "github.com/me/gpusched/pkg/model"

// Recorder observes atom lifecycle transitions for post-hoc diagnosis. The
// scheduler never depends on a recorder succeeding; implementations log their
// own failures.
type Recorder interface {
	// AtomSubmitted fires when an atom enters the master queue.
	AtomSubmitted(atom *model.Atom)

	// AtomDispatched fires when an atom is assigned a job slot, or when a
	// soft atom starts its semaphore wait (slot is then ^uint32(0)).
	AtomDispatched(atom *model.Atom, slot uint32)

	// AtomFinalized fires exactly once per atom, when it reaches a terminal
	// state.
	AtomFinalized(atom *model.Atom)
}

// NoSlot is the slot value reported to AtomDispatched for soft atoms.
const NoSlot = ^uint32(0)

type nopRecorder struct{}

func (nopRecorder) AtomSubmitted(*model.Atom)          {}
func (nopRecorder) AtomDispatched(*model.Atom, uint32) {}
func (nopRecorder) AtomFinalized(*model.Atom)          {}
