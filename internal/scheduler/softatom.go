package scheduler

import "github.com/me/gpusched/pkg/model"

// processSoftAtom starts a promoted soft atom's semaphore wait: it records
// the wait start, inserts the atom into the wait set, and registers the
// semaphore with the platform port. A semaphore that already fired completes
// the atom without a wait.
func (s *Scheduler) processSoftAtom(e *entry) {
	atom := e.atom
	if atom.Semaphore.Signaled() {
		s.logger.Debug("soft atom completed (semaphore already signaled)", "atom_id", atom.ID)
		s.finalize(e, model.AtomStateCompleted, model.ResultSuccess, true)
		return
	}

	s.setState(atom, model.AtomStateWaitingSemaphore)
	atom.WaitStartedAt = s.now()
	s.waiting = append(s.waiting, atom.ID)
	s.rec.AtomDispatched(atom, NoSlot)
	s.logger.Debug("soft atom waiting", "atom_id", atom.ID, "key", atom.Semaphore.Key())

	if s.port != nil {
		s.port.WaitAsync(atom.Semaphore)
	}
}

// PlatformPortSignaled resolves the soft atom waiting on the semaphore with
// the given port key. Signals with no waiting atom are ignored; the port may
// be shared with other waiters.
func (s *Scheduler) PlatformPortSignaled(key uint64) {
	for i, id := range s.waiting {
		e := s.arena[id]
		if e.atom.Semaphore.Key() != key {
			continue
		}
		s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
		s.softJobCompleted(e)
		return
	}
	s.logger.Debug("platform port signal with no waiting atom", "key", key)
}

// softJobCompleted finalizes a soft atom whose semaphore fired and re-runs
// scheduling, since its completion may satisfy a dependency elsewhere. The
// caller has already removed the atom from the wait set.
func (s *Scheduler) softJobCompleted(e *entry) {
	s.logger.Debug("soft atom completed", "atom_id", e.atom.ID)
	s.finalize(e, model.AtomStateCompleted, model.ResultSuccess, true)
	s.TryToSchedule()
}
