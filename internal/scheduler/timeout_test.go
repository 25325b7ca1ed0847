package scheduler

import (
	"testing"
	"time"

	"github.com/me/gpusched/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCurrentTimeoutDurationIdle(t *testing.T) {
	s, _, _ := newTestScheduler(t, 1)
	assert.Equal(t, NoTimeout, s.GetCurrentTimeoutDuration())
}

func TestGetCurrentTimeoutDurationExecuting(t *testing.T) {
	s, _, clk := newTestScheduler(t, 1)
	conn := model.NewConnection("c")

	require.NoError(t, s.EnqueueAtom(model.NewAtom(conn, model.AffinityForSlot(0), false)))
	assert.Equal(t, s.cfg.ExecutionTimeout, s.GetCurrentTimeoutDuration())

	clk.Advance(500 * time.Millisecond)
	assert.Equal(t, s.cfg.ExecutionTimeout-500*time.Millisecond, s.GetCurrentTimeoutDuration())

	clk.Advance(s.cfg.ExecutionTimeout)
	assert.LessOrEqual(t, s.GetCurrentTimeoutDuration(), time.Duration(0))
}

func TestGetCurrentTimeoutDurationEarliestWins(t *testing.T) {
	s, _, clk := newTestScheduler(t, 1)
	conn := model.NewConnection("c")

	// A waiting soft atom first, then a hardware atom dispatched 1s later. The
	// hardware atom's execution deadline (at t+3s) lands before the semaphore
	// deadline (at t+5s).
	soft := model.NewSoftAtom(conn, &fakeSemaphore{key: 1})
	require.NoError(t, s.EnqueueAtom(soft))
	clk.Advance(1 * time.Second)
	require.NoError(t, s.EnqueueAtom(model.NewAtom(conn, model.AffinityForSlot(0), false)))

	assert.Equal(t, s.cfg.ExecutionTimeout, s.GetCurrentTimeoutDuration())
}

func TestHandleTimedOutAtomsSoftStop(t *testing.T) {
	s, owner, clk := newTestScheduler(t, 1)
	conn := model.NewConnection("c")

	atom := model.NewAtom(conn, model.AffinityForSlot(0), false)
	require.NoError(t, s.EnqueueAtom(atom))

	// Before the deadline nothing happens.
	clk.Advance(s.cfg.ExecutionTimeout - time.Millisecond)
	s.HandleTimedOutAtoms()
	assert.Empty(t, owner.softStops)
	assert.Zero(t, owner.hangMessages)

	// Past the deadline the atom gets one cooperative stop and a hang report,
	// and stays on the slot.
	clk.Advance(time.Millisecond)
	s.HandleTimedOutAtoms()
	require.Equal(t, []model.AtomID{atom.ID}, owner.softStops)
	assert.Equal(t, 1, owner.hangMessages)
	assert.Equal(t, model.AtomStateExecuting, atom.State)

	// Re-running within the grace period does not stop again.
	s.HandleTimedOutAtoms()
	assert.Len(t, owner.softStops, 1)
	assert.Equal(t, 1, owner.hangMessages)
	assert.Empty(t, owner.hardStops)
}

func TestHandleTimedOutAtomsHardStopEscalation(t *testing.T) {
	s, owner, clk := newTestScheduler(t, 1)
	conn := model.NewConnection("c")

	atom := model.NewAtom(conn, model.AffinityForSlot(0), false)
	require.NoError(t, s.EnqueueAtom(atom))

	clk.Advance(s.cfg.ExecutionTimeout)
	s.HandleTimedOutAtoms()
	require.Len(t, owner.softStops, 1)

	// The next deadline is the escalation deadline.
	assert.Equal(t, s.cfg.HangGracePeriod, s.GetCurrentTimeoutDuration())

	clk.Advance(s.cfg.HangGracePeriod)
	s.HandleTimedOutAtoms()
	require.Equal(t, []model.AtomID{atom.ID}, owner.hardStops)

	// Past the hard stop nothing is left to escalate.
	assert.Equal(t, NoTimeout, s.GetCurrentTimeoutDuration())
	s.HandleTimedOutAtoms()
	assert.Len(t, owner.hardStops, 1)

	// The hardware eventually reports the stop; the atom retires as timed out.
	require.NoError(t, s.JobCompleted(0, model.ResultTimedOut, 3))
	assert.Equal(t, model.AtomStateTimedOut, atom.State)
	require.Equal(t, []completion{{atom.ID, model.ResultTimedOut}}, owner.completed)
	assert.Empty(t, s.arena)
}

func TestSoftStoppedAtomCompletesBeforeEscalation(t *testing.T) {
	s, owner, clk := newTestScheduler(t, 1)
	conn := model.NewConnection("c")

	atom := model.NewAtom(conn, model.AffinityForSlot(0), false)
	require.NoError(t, s.EnqueueAtom(atom))

	clk.Advance(s.cfg.ExecutionTimeout)
	s.HandleTimedOutAtoms()

	// The soft stop landed in time. Even a success result retires the atom as
	// timed out, because it was stopped short.
	require.NoError(t, s.JobCompleted(0, model.ResultTimedOut, 9))
	assert.Equal(t, model.AtomStateTimedOut, atom.State)
	assert.Empty(t, owner.hardStops)
}

func TestSemaphoreTimeout(t *testing.T) {
	s, owner, clk := newTestScheduler(t, 1)
	conn := model.NewConnection("c")

	soft := model.NewSoftAtom(conn, &fakeSemaphore{key: 7})
	require.NoError(t, s.EnqueueAtom(soft))
	require.Equal(t, model.AtomStateWaitingSemaphore, soft.State)

	assert.Equal(t, s.cfg.SemaphoreTimeout, s.GetCurrentTimeoutDuration())

	clk.Advance(s.cfg.SemaphoreTimeout)
	s.HandleTimedOutAtoms()

	assert.Equal(t, model.AtomStateSemaphoreTimeout, soft.State)
	assert.Equal(t, model.ResultSemaphoreTimedOut, soft.Result)
	require.Equal(t, []completion{{soft.ID, model.ResultSemaphoreTimedOut}}, owner.completed)
	assert.Empty(t, s.waiting)
	assert.Empty(t, s.arena)
}

func TestSemaphoreTimeoutFailsDependents(t *testing.T) {
	s, owner, clk := newTestScheduler(t, 1)
	conn := model.NewConnection("c")

	soft := model.NewSoftAtom(conn, &fakeSemaphore{key: 7})
	dependent := model.NewAtom(conn, model.AffinityForSlot(0), false, soft)
	require.NoError(t, s.EnqueueAtom(soft))
	require.NoError(t, s.EnqueueAtom(dependent))

	clk.Advance(s.cfg.SemaphoreTimeout)
	s.HandleTimedOutAtoms()

	// The expired wait cascades: the dependent can never run.
	assert.Equal(t, model.AtomStateCancelled, dependent.State)
	assert.Equal(t, model.ResultDependencyFailed, dependent.Result)
	assert.Contains(t, owner.completed, completion{dependent.ID, model.ResultDependencyFailed})
}
