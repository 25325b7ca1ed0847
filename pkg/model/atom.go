package model

import (
	"time"

	"github.com/google/uuid"
)

// AtomID is the stable handle for an atom. Scheduler containers store IDs,
// never duplicate owning references; the arena maps IDs back to atoms.
type AtomID string

// SlotAffinity is a bitmask of the job slots an atom may execute on.
// Bit n set means slot n is acceptable.
type SlotAffinity uint32

// AffinityForSlot returns an affinity containing only the given slot.
func AffinityForSlot(slot uint32) SlotAffinity {
	return SlotAffinity(1) << slot
}

// Contains reports whether the affinity includes the given slot.
func (a SlotAffinity) Contains(slot uint32) bool {
	return a&(SlotAffinity(1)<<slot) != 0
}

// WithinRange reports whether the affinity is non-empty and names only slots
// below jobSlots.
func (a SlotAffinity) WithinRange(jobSlots uint32) bool {
	if a == 0 {
		return false
	}
	valid := SlotAffinity(1)<<jobSlots - 1
	return a&^valid == 0
}

// Semaphore is the platform semaphore a soft atom waits on. The
// implementation belongs to the platform layer; the scheduler only needs the
// port key and the current signal state.
type Semaphore interface {
	// Key identifies the semaphore on the platform port.
	Key() uint64

	// Signaled reports whether the semaphore has already fired.
	Signaled() bool
}

// Atom is a single unit of GPU work submitted by a client connection.
//
// A nil Semaphore marks a hardware atom, dispatched to a job slot. A non-nil
// Semaphore marks a soft atom, resolved through the platform port without
// ever occupying a slot.
type Atom struct {
	ID       AtomID
	Conn     *Connection
	Affinity SlotAffinity
	// Protected is the execution mode the atom requires. Protected mode is a
	// single global hardware state; atoms of both modes never execute
	// concurrently.
	Protected bool
	// Deps are the predecessor atoms that must complete before this atom
	// becomes runnable. Atom references stay valid after the predecessors
	// leave the scheduler containers, so late dependency checks still see
	// their terminal states.
	Deps []*Atom

	State       AtomState
	SubmittedAt time.Time

	// Slot is the job slot the atom executes on, valid while State is
	// Executing and kept afterwards for diagnosis.
	Slot uint32

	// Result is meaningful once State is terminal.
	Result ResultCode
	// Tail is the hardware progress marker reported at completion for a
	// partially executed atom.
	Tail uint64

	// Semaphore and WaitStartedAt are soft-atom fields.
	Semaphore     Semaphore
	WaitStartedAt time.Time
}

// NewAtom creates an unscheduled hardware atom owned by conn.
func NewAtom(conn *Connection, affinity SlotAffinity, protected bool, deps ...*Atom) *Atom {
	return &Atom{
		ID:          AtomID(uuid.New().String()),
		Conn:        conn,
		Affinity:    affinity,
		Protected:   protected,
		Deps:        deps,
		State:       AtomStateUnscheduled,
		SubmittedAt: time.Now().UTC(),
	}
}

// NewSoftAtom creates an unscheduled soft atom resolved by sem.
func NewSoftAtom(conn *Connection, sem Semaphore, deps ...*Atom) *Atom {
	a := NewAtom(conn, 0, false, deps...)
	a.Semaphore = sem
	return a
}

// IsSoft reports whether the atom resolves through a semaphore instead of a
// job slot.
func (a *Atom) IsSoft() bool {
	return a.Semaphore != nil
}

// Connection is a client session owning submitted atoms and GPU memory
// mappings. It may be torn down while atoms are outstanding; the scheduler's
// cancellation pass is what makes the teardown safe.
type Connection struct {
	ID    string
	Label string
}

// NewConnection creates a connection with a fresh ID.
func NewConnection(label string) *Connection {
	return &Connection{ID: uuid.New().String(), Label: label}
}
