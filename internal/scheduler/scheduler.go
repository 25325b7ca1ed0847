// Package scheduler is the GPU-command-queue job scheduler core. It accepts
// atoms from client connections and dispatches them onto a fixed set of
// hardware job slots, honoring inter-atom dependencies, the global
// protected-mode constraint, timeout escalation, and per-connection
// cancellation. Hardware access happens only through the injected Owner.
//
// The scheduler is single-threaded and cooperative: every public entry point
// must run on one dispatch context. A caller receiving hardware interrupts on
// another thread must marshal them onto that context (see internal/devloop).
package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/me/gpusched/pkg/model"
)

// Config holds the scheduler timeout policy.
type Config struct {
	// ExecutionTimeout is how long a dispatched atom may hold a slot before
	// the hang escalation starts.
	ExecutionTimeout time.Duration

	// SemaphoreTimeout is how long a soft atom may wait on its semaphore.
	// Longer than ExecutionTimeout because one semaphore may gate many
	// dependent atoms.
	SemaphoreTimeout time.Duration

	// HangGracePeriod is how long a soft-stopped atom gets to wind down
	// before the stop escalates to a hard stop.
	HangGracePeriod time.Duration
}

// DefaultConfig returns the stock timeout policy.
func DefaultConfig() Config {
	return Config{
		ExecutionTimeout: 2 * time.Second,
		SemaphoreTimeout: 5 * time.Second,
		HangGracePeriod:  100 * time.Millisecond,
	}
}

// entry is the arena record for one atom. Containers hold model.AtomID
// handles; the arena is the single owner of the entry until the atom reaches
// a terminal state.
type entry struct {
	atom *model.Atom

	// Execution bookkeeping, valid while the atom holds a slot.
	dispatchedAt time.Time

	// Hang escalation state.
	softStopped   bool
	softStoppedAt time.Time
	hardStopped   bool

	// cancelled marks an executing atom whose connection was torn down; the
	// atom finalizes as Cancelled when its hard stop lands via JobCompleted.
	cancelled bool
}

// Scheduler owns every scheduler container: the master queue, the per-slot
// runnable queues, the execution slots, and the soft-atom wait set.
type Scheduler struct {
	owner Owner

	// Optional Owner capabilities, nil when unsupported.
	stopper  AtomStopper
	releaser MappingReleaser
	port     PlatformPort
	power    PowerObserver

	jobSlots uint32
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	rec      Recorder

	arena     map[model.AtomID]*entry
	queue     []model.AtomID   // master queue, arrival order
	runnable  [][]model.AtomID // one FIFO per job slot
	executing []model.AtomID   // one per job slot, "" when free
	waiting   []model.AtomID   // soft atoms waiting on semaphores

	// Pending mode-switch intents. While one is set, atoms of the departing
	// mode are held and the switch fires once no atom is executing.
	wantProtected    bool
	wantNonprotected bool

	lastActive  bool
	activeKnown bool
}

// Option configures optional Scheduler dependencies.
type Option func(*Scheduler)

// WithConfig overrides the default timeout policy.
func WithConfig(cfg Config) Option {
	return func(s *Scheduler) { s.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger.With("component", "scheduler") }
}

// WithClock injects a time source. Used by tests to drive timeouts
// deterministically.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithRecorder sets the lifecycle trace recorder.
func WithRecorder(rec Recorder) Option {
	return func(s *Scheduler) { s.rec = rec }
}

// New creates a scheduler for jobSlots hardware slots, driving the given
// Owner. Optional Owner capabilities (AtomStopper, MappingReleaser,
// PortProvider, PowerObserver) are probed once here; absent capabilities stay
// absent for the scheduler's lifetime.
func New(owner Owner, jobSlots uint32, opts ...Option) *Scheduler {
	s := &Scheduler{
		owner:     owner,
		jobSlots:  jobSlots,
		cfg:       DefaultConfig(),
		logger:    slog.Default().With("component", "scheduler"),
		now:       func() time.Time { return time.Now().UTC() },
		rec:       nopRecorder{},
		arena:     make(map[model.AtomID]*entry),
		runnable:  make([][]model.AtomID, jobSlots),
		executing: make([]model.AtomID, jobSlots),
	}
	for _, opt := range opts {
		opt(s)
	}

	if st, ok := owner.(AtomStopper); ok {
		s.stopper = st
	}
	if mr, ok := owner.(MappingReleaser); ok {
		s.releaser = mr
	}
	if pp, ok := owner.(PortProvider); ok {
		s.port = pp.GetPlatformPort()
	}
	if po, ok := owner.(PowerObserver); ok {
		s.power = po
	}
	return s
}

// JobSlots returns the number of hardware job slots.
func (s *Scheduler) JobSlots() uint32 {
	return s.jobSlots
}

// GetAtomListSize returns the number of atoms in the master queue, i.e.
// submitted but not yet promoted to a runnable queue.
func (s *Scheduler) GetAtomListSize() int {
	return len(s.queue)
}

// EnqueueAtom appends the atom to the master queue and runs a scheduling
// pass. The atom must have an owning connection, and a hardware atom must
// name at least one valid slot.
func (s *Scheduler) EnqueueAtom(atom *model.Atom) error {
	if atom == nil {
		return fmt.Errorf("enqueue nil atom")
	}
	if atom.Conn == nil {
		return fmt.Errorf("atom %s has no owning connection", atom.ID)
	}
	if atom.State != model.AtomStateUnscheduled {
		return fmt.Errorf("atom %s enqueued in state %s", atom.ID, atom.State)
	}
	if !atom.IsSoft() && !atom.Affinity.WithinRange(s.jobSlots) {
		return fmt.Errorf("atom %s slot affinity %#x out of range (job slots %d)", atom.ID, uint32(atom.Affinity), s.jobSlots)
	}
	if _, ok := s.arena[atom.ID]; ok {
		return fmt.Errorf("atom %s already enqueued", atom.ID)
	}

	s.arena[atom.ID] = &entry{atom: atom}
	s.queue = append(s.queue, atom.ID)
	s.rec.AtomSubmitted(atom)
	s.logger.Debug("atom enqueued",
		"atom_id", atom.ID, "connection_id", atom.Conn.ID,
		"soft", atom.IsSoft(), "protected", atom.Protected, "deps", len(atom.Deps))

	s.TryToSchedule()
	return nil
}

// TryToSchedule runs promotion, mode-switch validation, and slot dispatch in
// that fixed order. It is idempotent and is the single re-entry point after
// every external event: enqueue, completion, cancellation, timeout, and
// semaphore signal.
func (s *Scheduler) TryToSchedule() {
	s.moveAtomsToRunnable()
	s.validateCanSwitchProtected()
	s.scheduleRunnableAtoms()
	s.updatePowerManager()
}

// moveAtomsToRunnable scans the master queue in arrival order and promotes
// every atom whose predecessors have all completed. Promotion appends in scan
// order, so each runnable queue is a global FIFO by enqueue order across
// connections. An atom whose predecessor failed can never run; it finalizes
// immediately with ResultDependencyFailed.
func (s *Scheduler) moveAtomsToRunnable() {
	kept := s.queue[:0]
	for _, id := range s.queue {
		e := s.arena[id]
		ready, failed := dependenciesResolved(e.atom)
		switch {
		case failed:
			s.logger.Debug("atom cancelled (failed predecessor)", "atom_id", id)
			s.finalize(e, model.AtomStateCancelled, model.ResultDependencyFailed, true)
		case !ready:
			kept = append(kept, id)
		case e.atom.IsSoft():
			s.processSoftAtom(e)
		default:
			s.setState(e.atom, model.AtomStateRunnable)
			for slot := uint32(0); slot < s.jobSlots; slot++ {
				if e.atom.Affinity.Contains(slot) {
					s.runnable[slot] = append(s.runnable[slot], id)
				}
			}
			s.logger.Debug("atom runnable", "atom_id", id)
		}
	}
	s.queue = kept
}

// dependenciesResolved reports whether every predecessor completed (ready)
// or any predecessor reached a terminal state other than Completed (failed).
func dependenciesResolved(atom *model.Atom) (ready, failed bool) {
	ready = true
	for _, dep := range atom.Deps {
		switch {
		case dep.State == model.AtomStateCompleted:
		case dep.State.IsTerminal():
			return false, true
		default:
			ready = false
		}
	}
	return ready, false
}

// validateCanSwitchProtected performs a pending mode switch once no atom is
// executing on any slot. Protected mode is a single global hardware state;
// switching while anything executes is forbidden.
func (s *Scheduler) validateCanSwitchProtected() {
	if !s.wantProtected && !s.wantNonprotected {
		return
	}
	if s.numExecuting() > 0 {
		return
	}
	if s.wantProtected {
		s.logger.Debug("entering protected mode")
		s.owner.EnterProtectedMode()
		s.wantProtected = false
	}
	if s.wantNonprotected {
		if !s.owner.ExitProtectedMode() {
			s.logger.Error("exit from protected mode failed")
			s.owner.OutputHangMessage()
		}
		s.wantNonprotected = false
	}
}

// scheduleRunnableAtoms assigns free, mode-compatible slots to the heads of
// their runnable queues. An atom whose mode differs from the current hardware
// mode records a switch intent and stays queued; while an intent is pending,
// atoms of the departing mode are held so the slots drain.
func (s *Scheduler) scheduleRunnableAtoms() {
	for slot := uint32(0); slot < s.jobSlots; slot++ {
		if s.executing[slot] != "" || len(s.runnable[slot]) == 0 {
			continue
		}
		id := s.runnable[slot][0]
		e := s.arena[id]

		if (s.wantProtected && !e.atom.Protected) || (s.wantNonprotected && e.atom.Protected) {
			continue
		}
		if e.atom.Protected != s.owner.IsInProtectedMode() {
			if e.atom.Protected {
				s.wantProtected = true
			} else {
				s.wantNonprotected = true
			}
			s.validateCanSwitchProtected()
			if e.atom.Protected != s.owner.IsInProtectedMode() {
				continue
			}
		}

		s.runnable[slot] = s.runnable[slot][1:]
		for other := range s.runnable {
			if uint32(other) != slot {
				s.runnable[other] = removeHandle(s.runnable[other], id)
			}
		}

		s.setState(e.atom, model.AtomStateExecuting)
		e.atom.Slot = slot
		e.dispatchedAt = s.now()
		s.executing[slot] = id
		s.rec.AtomDispatched(e.atom, slot)
		s.logger.Debug("atom dispatched",
			"atom_id", id, "slot", slot, "protected", e.atom.Protected)
		s.owner.RunAtom(e.atom)
	}
}

// updatePowerManager reports to the Owner whether any slot is busy or has
// queued work. Advisory only; scheduling correctness never depends on it.
func (s *Scheduler) updatePowerManager() {
	if s.power == nil {
		return
	}
	active := s.numExecuting() > 0 || len(s.queue) > 0 || len(s.waiting) > 0
	if !active {
		for _, q := range s.runnable {
			if len(q) > 0 {
				active = true
				break
			}
		}
	}
	if s.activeKnown && active == s.lastActive {
		return
	}
	s.lastActive = active
	s.activeKnown = true
	s.power.UpdateGpuActive(active)
}

// JobCompleted retires the atom executing on the given slot, reports the
// outcome through Owner.AtomCompleted, frees the slot, and re-runs
// scheduling. tail is the hardware progress marker for a partially executed
// atom. Hardware-interrupt-driven; the caller marshals it onto the dispatch
// context.
func (s *Scheduler) JobCompleted(slot uint32, result model.ResultCode, tail uint64) error {
	if slot >= s.jobSlots {
		return fmt.Errorf("completion for slot %d out of range (job slots %d)", slot, s.jobSlots)
	}
	id := s.executing[slot]
	if id == "" {
		return fmt.Errorf("completion for idle slot %d", slot)
	}
	e := s.arena[id]
	s.executing[slot] = ""
	e.atom.Tail = tail

	state := model.AtomStateCompleted
	switch {
	case e.cancelled:
		state = model.AtomStateCancelled
	case result.OK():
	case e.softStopped || e.hardStopped:
		state = model.AtomStateTimedOut
	}

	s.logger.Info("job completed",
		"atom_id", id, "slot", slot, "result", result.String(), "tail", tail, "state", state)
	s.finalize(e, state, result, true)
	s.TryToSchedule()
	return nil
}

// setState advances the atom's lifecycle state, enforcing the forward-only
// transition tables. A violation indicates a scheduler bug; it is logged and
// the transition applied anyway so the atom still reaches a terminal state.
func (s *Scheduler) setState(atom *model.Atom, next model.AtomState) {
	valid := atom.State.CanTransitionTo(next)
	if atom.IsSoft() {
		valid = atom.State.CanSoftTransitionTo(next)
	}
	if !valid {
		s.logger.Error("state transition",
			"error", &model.InvalidTransitionError{AtomID: atom.ID, From: atom.State, To: next})
	}
	atom.State = next
}

// finalize moves the atom to a terminal state and removes it from the arena.
// After this the atom is unreachable from every scheduler container; the
// caller must already have removed its handle from any queue it sat in.
func (s *Scheduler) finalize(e *entry, state model.AtomState, result model.ResultCode, report bool) {
	s.setState(e.atom, state)
	e.atom.Result = result
	delete(s.arena, e.atom.ID)
	s.rec.AtomFinalized(e.atom)
	if report {
		s.owner.AtomCompleted(e.atom, result)
	}
}

func (s *Scheduler) numExecuting() int {
	count := 0
	for _, id := range s.executing {
		if id != "" {
			count++
		}
	}
	return count
}

func removeHandle(list []model.AtomID, id model.AtomID) []model.AtomID {
	for i, v := range list {
		if v == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// SlotSnapshot describes one job slot for the debug API.
type SlotSnapshot struct {
	Slot     uint32       `json:"slot"`
	AtomID   model.AtomID `json:"atom_id,omitempty"`
	Runnable int          `json:"runnable"`
}

// Snapshot is a point-in-time view of every scheduler container.
type Snapshot struct {
	JobSlots         uint32         `json:"job_slots"`
	Protected        bool           `json:"protected"`
	WantProtected    bool           `json:"want_protected"`
	WantNonprotected bool           `json:"want_nonprotected"`
	Queued           int            `json:"queued"`
	Waiting          int            `json:"waiting"`
	Slots            []SlotSnapshot `json:"slots"`
}

// Snapshot reports the current scheduler state. Must run on the dispatch
// context like every other entry point.
func (s *Scheduler) Snapshot() Snapshot {
	snap := Snapshot{
		JobSlots:         s.jobSlots,
		Protected:        s.owner.IsInProtectedMode(),
		WantProtected:    s.wantProtected,
		WantNonprotected: s.wantNonprotected,
		Queued:           len(s.queue),
		Waiting:          len(s.waiting),
		Slots:            make([]SlotSnapshot, s.jobSlots),
	}
	for slot := uint32(0); slot < s.jobSlots; slot++ {
		snap.Slots[slot] = SlotSnapshot{
			Slot:     slot,
			AtomID:   s.executing[slot],
			Runnable: len(s.runnable[slot]),
		}
	}
	return snap
}
