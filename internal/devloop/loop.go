// Package devloop hosts the scheduler on a single dispatch context. Every
// external event (submission, hardware completion interrupt, semaphore
// signal, cancellation) is marshaled onto one goroutine, which is the
// serialization the scheduler requires of its caller. Between events the loop
// sleeps exactly as long as the scheduler's next deadline.
package devloop

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/me/gpusched/internal/scheduler"
	"github.com/me/gpusched/pkg/model"
)

// ErrStopped is returned for calls made after the loop has shut down.
var ErrStopped = errors.New("device loop stopped")

// Loop owns the dispatch goroutine for one scheduler.
type Loop struct {
	sched  *scheduler.Scheduler
	logger *slog.Logger
	events chan func()
	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a device loop around sched. The loop does nothing until Start.
func New(sched *scheduler.Scheduler, logger *slog.Logger) *Loop {
	return &Loop{
		sched:  sched,
		logger: logger.With("component", "devloop"),
		events: make(chan func(), 256),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start runs the dispatch loop. Blocks until ctx is cancelled or Stop is
// called. The wake timer is armed from GetCurrentTimeoutDuration after every
// event, so hang detection fires without polling.
func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info("device loop started", "job_slots", l.sched.JobSlots())

	var timer *time.Timer
	var timerC <-chan time.Time
	disarm := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}
	arm := func() {
		disarm()
		d := l.sched.GetCurrentTimeoutDuration()
		if d == scheduler.NoTimeout {
			return
		}
		if d < 0 {
			d = 0
		}
		timer = time.NewTimer(d)
		timerC = timer.C
	}
	arm()
	defer disarm()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("device loop stopping (context cancelled)")
			close(l.doneCh)
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("device loop stopping (stop called)")
			close(l.doneCh)
			return nil
		case fn := <-l.events:
			fn()
			arm()
		case <-timerC:
			timer = nil
			timerC = nil
			l.sched.HandleTimedOutAtoms()
			arm()
		}
	}
}

// Stop shuts the loop down and waits for the dispatch goroutine to finish.
func (l *Loop) Stop() error {
	close(l.stopCh)
	<-l.doneCh
	return nil
}

// post queues fn for the dispatch goroutine without waiting for it to run.
func (l *Loop) post(fn func()) {
	select {
	case l.events <- fn:
	case <-l.doneCh:
		l.logger.Warn("event dropped after stop")
	}
}

// call queues fn and waits until the dispatch goroutine has run it.
func (l *Loop) call(fn func()) error {
	done := make(chan struct{})
	select {
	case l.events <- func() { fn(); close(done) }:
	case <-l.doneCh:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-l.doneCh:
		return ErrStopped
	}
}

// EnqueueAtom submits an atom on the dispatch context and returns the
// scheduler's validation result.
func (l *Loop) EnqueueAtom(atom *model.Atom) error {
	var err error
	if cerr := l.call(func() { err = l.sched.EnqueueAtom(atom) }); cerr != nil {
		return cerr
	}
	return err
}

// JobCompleted marshals a hardware completion interrupt onto the dispatch
// context. Fire-and-forget, interrupt style; validation failures are logged.
func (l *Loop) JobCompleted(slot uint32, result model.ResultCode, tail uint64) {
	l.post(func() {
		if err := l.sched.JobCompleted(slot, result, tail); err != nil {
			l.logger.Error("job completed", "slot", slot, "error", err)
		}
	})
}

// SignalSemaphore marshals a platform port signal onto the dispatch context.
func (l *Loop) SignalSemaphore(key uint64) {
	l.post(func() { l.sched.PlatformPortSignaled(key) })
}

// CancelConnection cancels every atom owned by conn and releases its GPU
// mappings. Returns once the synchronous part of the teardown has run;
// executing atoms still finalize asynchronously through JobCompleted.
func (l *Loop) CancelConnection(conn *model.Connection) error {
	return l.call(func() {
		l.sched.CancelAtomsForConnection(conn)
		l.sched.ReleaseMappingsForConnection(conn)
	})
}

// Snapshot returns the scheduler state, read on the dispatch context.
func (l *Loop) Snapshot() (scheduler.Snapshot, error) {
	var snap scheduler.Snapshot
	if err := l.call(func() { snap = l.sched.Snapshot() }); err != nil {
		return scheduler.Snapshot{}, err
	}
	return snap, nil
}
