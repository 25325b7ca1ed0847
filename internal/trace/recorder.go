package trace

import (
	"context"
	"log/slog"
	"time"

	"github.com/me/gpusched/internal/scheduler"
	"github.com/me/gpusched/pkg/model"
)

// Recorder adapts a Store to the scheduler's Recorder interface. Recording
// is best-effort: storage failures are logged and never propagate into
// scheduling.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder creates a Recorder writing atom lifecycle rows to store.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger.With("component", "trace-recorder")}
}

func (r *Recorder) AtomSubmitted(atom *model.Atom) {
	rec := &AtomRecord{
		ID:           string(atom.ID),
		ConnectionID: atom.Conn.ID,
		Affinity:     uint32(atom.Affinity),
		Protected:    atom.Protected,
		Soft:         atom.IsSoft(),
		State:        atom.State.String(),
		SubmittedAt:  atom.SubmittedAt,
	}
	if err := r.store.RecordSubmitted(context.Background(), rec); err != nil {
		r.logger.Error("record submitted", "atom_id", atom.ID, "error", err)
	}
}

func (r *Recorder) AtomDispatched(atom *model.Atom, slot uint32) {
	var slotPtr *uint32
	if slot != scheduler.NoSlot {
		slotPtr = &slot
	}
	if err := r.store.RecordDispatched(context.Background(), string(atom.ID), slotPtr, time.Now().UTC()); err != nil {
		r.logger.Error("record dispatched", "atom_id", atom.ID, "error", err)
	}
}

func (r *Recorder) AtomFinalized(atom *model.Atom) {
	err := r.store.RecordFinalized(context.Background(),
		string(atom.ID), atom.State.String(), atom.Result.String(), atom.Tail, time.Now().UTC())
	if err != nil {
		r.logger.Error("record finalized", "atom_id", atom.ID, "error", err)
	}
}
