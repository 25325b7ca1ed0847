package scheduler

import (
	"math"
	"time"

	"github.com/me/gpusched/pkg/model"
)

// NoTimeout is returned by GetCurrentTimeoutDuration when no deadline is
// outstanding.
const NoTimeout = time.Duration(math.MaxInt64)

// GetCurrentTimeoutDuration returns the time until the earliest outstanding
// deadline: an executing atom's execution timeout (or, once soft-stopped, its
// escalation deadline) or a waiting soft atom's semaphore timeout. The result
// is <= 0 once a deadline has passed, and NoTimeout when nothing is
// outstanding. The owning event loop sleeps exactly this long instead of
// polling.
func (s *Scheduler) GetCurrentTimeoutDuration() time.Duration {
	deadline, ok := s.nextDeadline()
	if !ok {
		return NoTimeout
	}
	return deadline.Sub(s.now())
}

func (s *Scheduler) nextDeadline() (time.Time, bool) {
	var earliest time.Time
	found := false
	consider := func(t time.Time) {
		if !found || t.Before(earliest) {
			earliest = t
			found = true
		}
	}

	for _, id := range s.executing {
		if id == "" {
			continue
		}
		e := s.arena[id]
		switch {
		case e.hardStopped:
			// Nothing further to escalate; recovery past a hard stop is the
			// owner's problem.
		case e.softStopped:
			consider(e.softStoppedAt.Add(s.cfg.HangGracePeriod))
		default:
			consider(e.dispatchedAt.Add(s.cfg.ExecutionTimeout))
		}
	}
	for _, id := range s.waiting {
		consider(s.arena[id].atom.WaitStartedAt.Add(s.cfg.SemaphoreTimeout))
	}
	return earliest, found
}

// HandleTimedOutAtoms escalates overdue atoms. An executing atom past its
// execution deadline first gets a cooperative SoftStopAtom and a hang report;
// if it is still on the slot after the grace period, the stop escalates to
// HardStopAtom. Either way the atom finalizes through the normal JobCompleted
// path. A waiting soft atom past the semaphore deadline is abandoned and
// finalized as SemaphoreTimeout immediately.
func (s *Scheduler) HandleTimedOutAtoms() {
	now := s.now()

	for _, id := range s.executing {
		if id == "" {
			continue
		}
		e := s.arena[id]
		switch {
		case e.hardStopped:
		case e.softStopped:
			if now.Before(e.softStoppedAt.Add(s.cfg.HangGracePeriod)) {
				continue
			}
			e.hardStopped = true
			s.logger.Warn("atom unresponsive after soft stop, hard stopping",
				"atom_id", id, "slot", e.atom.Slot)
			if s.stopper != nil {
				s.stopper.HardStopAtom(e.atom)
			}
		default:
			if now.Before(e.dispatchedAt.Add(s.cfg.ExecutionTimeout)) {
				continue
			}
			e.softStopped = true
			e.softStoppedAt = now
			s.logger.Warn("atom exceeded execution timeout, soft stopping",
				"atom_id", id, "slot", e.atom.Slot,
				"executed_for", now.Sub(e.dispatchedAt))
			s.owner.OutputHangMessage()
			if s.stopper != nil {
				s.stopper.SoftStopAtom(e.atom)
			}
		}
	}

	expired := false
	for i := 0; i < len(s.waiting); {
		e := s.arena[s.waiting[i]]
		if now.Before(e.atom.WaitStartedAt.Add(s.cfg.SemaphoreTimeout)) {
			i++
			continue
		}
		s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
		s.logger.Warn("soft atom exceeded semaphore timeout",
			"atom_id", e.atom.ID, "key", e.atom.Semaphore.Key(),
			"waited_for", now.Sub(e.atom.WaitStartedAt))
		s.finalize(e, model.AtomStateSemaphoreTimeout, model.ResultSemaphoreTimedOut, true)
		expired = true
	}
	if expired {
		s.TryToSchedule()
	}
}
