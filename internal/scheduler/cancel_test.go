package scheduler

import (
	"testing"

	"github.com/me/gpusched/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelQueuedAndExecuting(t *testing.T) {
	s, owner, _ := newTestScheduler(t, 1)
	conn := model.NewConnection("c")

	// One atom executing, one runnable behind it, two gated on the executing
	// one in the master queue.
	first := model.NewAtom(conn, model.AffinityForSlot(0), false)
	second := model.NewAtom(conn, model.AffinityForSlot(0), false)
	third := model.NewAtom(conn, model.AffinityForSlot(0), false, first)
	fourth := model.NewAtom(conn, model.AffinityForSlot(0), false, first)
	for _, a := range []*model.Atom{first, second, third, fourth} {
		require.NoError(t, s.EnqueueAtom(a))
	}
	require.Equal(t, model.AtomStateExecuting, first.State)

	s.CancelAtomsForConnection(conn)

	// Non-executing atoms cancel synchronously with no completion callback.
	for _, a := range []*model.Atom{second, third, fourth} {
		assert.Equal(t, model.AtomStateCancelled, a.State)
		assert.Equal(t, model.ResultCancelled, a.Result)
	}
	assert.Empty(t, owner.completed)

	// The executing atom was hard stopped and is the only one still tracked.
	require.Equal(t, []model.AtomID{first.ID}, owner.hardStops)
	assert.Equal(t, model.AtomStateExecuting, first.State)
	require.Len(t, s.arena, 1)

	// The stop lands; now nothing owned by the connection remains anywhere.
	require.NoError(t, s.JobCompleted(0, model.ResultCancelled, 0))
	assert.Equal(t, model.AtomStateCancelled, first.State)
	require.Equal(t, []completion{{first.ID, model.ResultCancelled}}, owner.completed)
	assert.Empty(t, s.arena)
	assert.Empty(t, s.queue)
	assert.Empty(t, s.runnable[0])
	assert.Empty(t, s.executing[0])
}

func TestCancelIsIdempotentForExecutingAtom(t *testing.T) {
	s, owner, _ := newTestScheduler(t, 1)
	conn := model.NewConnection("c")

	atom := model.NewAtom(conn, model.AffinityForSlot(0), false)
	require.NoError(t, s.EnqueueAtom(atom))

	s.CancelAtomsForConnection(conn)
	s.CancelAtomsForConnection(conn)

	assert.Len(t, owner.hardStops, 1, "repeated cancel must not re-stop")
}

func TestCancelWaitingSoftAtom(t *testing.T) {
	s, owner, _ := newTestScheduler(t, 1)
	conn := model.NewConnection("c")

	soft := model.NewSoftAtom(conn, &fakeSemaphore{key: 4})
	require.NoError(t, s.EnqueueAtom(soft))
	require.Equal(t, model.AtomStateWaitingSemaphore, soft.State)

	s.CancelAtomsForConnection(conn)

	assert.Equal(t, model.AtomStateCancelled, soft.State)
	assert.Empty(t, s.waiting)
	assert.Empty(t, owner.completed)

	// A late signal for the cancelled atom's semaphore is ignored.
	s.PlatformPortSignaled(4)
	assert.Empty(t, owner.completed)
}

func TestCancelOtherConnectionUnaffected(t *testing.T) {
	s, owner, _ := newTestScheduler(t, 2)
	mine := model.NewConnection("mine")
	other := model.NewConnection("other")

	cancelled := model.NewAtom(mine, model.AffinityForSlot(0), false)
	kept := model.NewAtom(other, model.AffinityForSlot(1), false)
	require.NoError(t, s.EnqueueAtom(cancelled))
	require.NoError(t, s.EnqueueAtom(kept))

	s.CancelAtomsForConnection(mine)

	assert.Equal(t, model.AtomStateExecuting, kept.State)
	assert.Equal(t, []model.AtomID{cancelled.ID}, owner.hardStops,
		"only the cancelled connection's atom may be stopped")
}

func TestCancelFreesSlotForNextAtom(t *testing.T) {
	s, owner, _ := newTestScheduler(t, 1)
	doomed := model.NewConnection("doomed")
	live := model.NewConnection("live")

	blocker := model.NewAtom(doomed, model.AffinityForSlot(0), false)
	next := model.NewAtom(live, model.AffinityForSlot(0), false)
	require.NoError(t, s.EnqueueAtom(blocker))
	require.NoError(t, s.EnqueueAtom(next))
	require.Equal(t, model.AtomStateRunnable, next.State)

	s.CancelAtomsForConnection(doomed)
	require.NoError(t, s.JobCompleted(0, model.ResultCancelled, 0))

	// The freed slot goes to the surviving connection's atom.
	require.Contains(t, owner.ran, next.ID)
	assert.Equal(t, model.AtomStateExecuting, next.State)
}

func TestCancelNilConnection(t *testing.T) {
	s, _, _ := newTestScheduler(t, 1)
	s.CancelAtomsForConnection(nil)
	s.ReleaseMappingsForConnection(nil)
}

func TestReleaseMappingsForConnection(t *testing.T) {
	s, owner, _ := newTestScheduler(t, 1)
	mine := model.NewConnection("mine")
	other := model.NewConnection("other")

	a := model.NewAtom(mine, model.AffinityForSlot(0), false)
	b := model.NewAtom(mine, model.AffinityForSlot(0), false)
	c := model.NewAtom(other, model.AffinityForSlot(0), false)
	for _, atom := range []*model.Atom{a, b, c} {
		require.NoError(t, s.EnqueueAtom(atom))
	}

	s.ReleaseMappingsForConnection(mine)

	assert.ElementsMatch(t, []model.AtomID{a.ID, b.ID}, owner.released)
}
