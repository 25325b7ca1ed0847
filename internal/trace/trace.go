// Package trace persists the atom lifecycle for post-hoc hang diagnosis: one
// row per atom plus an append-only event log of its transitions. The
// scheduler publishes through the Recorder adapter and stays storage-free.
package trace

import (
	"context"
	"time"
)

// AtomRecord is the persisted summary row for one atom.
type AtomRecord struct {
	ID           string     `json:"id"`
	ConnectionID string     `json:"connection_id"`
	Affinity     uint32     `json:"affinity"`
	Protected    bool       `json:"protected"`
	Soft         bool       `json:"soft"`
	State        string     `json:"state"`
	Result       string     `json:"result,omitempty"`
	Tail         uint64     `json:"tail,omitempty"`
	Slot         *uint32    `json:"slot,omitempty"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Event is one recorded lifecycle transition.
type Event struct {
	ID     int64     `json:"id"`
	AtomID string    `json:"atom_id"`
	State  string    `json:"state"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// ListOptions filters ListAtoms.
type ListOptions struct {
	ConnectionID string
	State        string
	Limit        int
}

// Store defines the persistence layer for atom lifecycle records.
type Store interface {
	RecordSubmitted(ctx context.Context, rec *AtomRecord) error
	RecordDispatched(ctx context.Context, atomID string, slot *uint32, at time.Time) error
	RecordFinalized(ctx context.Context, atomID, state, result string, tail uint64, at time.Time) error

	GetAtom(ctx context.Context, id string) (*AtomRecord, error)
	ListAtoms(ctx context.Context, opts ListOptions) ([]*AtomRecord, error)
	ListEvents(ctx context.Context, atomID string) ([]*Event, error)

	Migrate(ctx context.Context) error
	Close() error
}
