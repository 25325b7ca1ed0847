package scheduler

import "github.com/me/gpusched/pkg/model"

// CancelAtomsForConnection drives every atom owned by conn to a terminal
// state, wherever it currently resides. Atoms not yet executing are removed
// and marked Cancelled synchronously, with no hardware interaction; executing
// atoms receive a hard stop and finalize asynchronously through the normal
// JobCompleted path. Once any pending hard stops complete, no atom owned by
// conn remains reachable from any scheduler container, which is what makes
// the connection safe to free.
func (s *Scheduler) CancelAtomsForConnection(conn *model.Connection) {
	if conn == nil {
		return
	}
	s.logger.Info("cancelling atoms for connection", "connection_id", conn.ID)

	for id, e := range s.arena {
		if e.atom.Conn != conn {
			continue
		}
		switch e.atom.State {
		case model.AtomStateUnscheduled:
			s.queue = removeHandle(s.queue, id)
			s.finalize(e, model.AtomStateCancelled, model.ResultCancelled, false)
		case model.AtomStateRunnable:
			for slot := range s.runnable {
				s.runnable[slot] = removeHandle(s.runnable[slot], id)
			}
			s.finalize(e, model.AtomStateCancelled, model.ResultCancelled, false)
		case model.AtomStateExecuting:
			if e.cancelled {
				continue
			}
			e.cancelled = true
			s.logger.Debug("hard stopping executing atom for cancel",
				"atom_id", id, "slot", e.atom.Slot)
			if s.stopper != nil {
				s.stopper.HardStopAtom(e.atom)
			}
		case model.AtomStateWaitingSemaphore:
			s.waiting = removeHandle(s.waiting, id)
			s.finalize(e, model.AtomStateCancelled, model.ResultCancelled, false)
		}
	}

	s.TryToSchedule()
}

// ReleaseMappingsForConnection drops GPU memory mappings for every atom still
// referencing conn, preventing dangling page-table references after teardown.
// A no-op when the Owner does not support mapping release.
func (s *Scheduler) ReleaseMappingsForConnection(conn *model.Connection) {
	if conn == nil || s.releaser == nil {
		return
	}
	for _, e := range s.arena {
		if e.atom.Conn == conn {
			s.releaser.ReleaseMappingsForAtom(e.atom)
		}
	}
}
