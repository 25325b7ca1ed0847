// Package sim is a simulated GPU: an Owner implementation that completes
// atoms on timers instead of hardware. It lets the daemon, the debug API, and
// the escalation paths run end to end without a device.
package sim

import (
	"log/slog"
	"sync"
	"time"

	"github.com/me/gpusched/internal/scheduler"
	"github.com/me/gpusched/pkg/model"
)

// CompletionSink receives the device's asynchronous events. The device loop
// implements it, marshaling each event onto the dispatch context.
type CompletionSink interface {
	JobCompleted(slot uint32, result model.ResultCode, tail uint64)
	SignalSemaphore(key uint64)
}

// Device simulates the GPU behind the scheduler's Owner interface, including
// every optional capability.
type Device struct {
	logger      *slog.Logger
	jobDuration time.Duration

	mu        sync.Mutex
	sink      CompletionSink
	protected bool
	active    bool
	hangs     map[model.AtomID]bool
	inflight  map[model.AtomID]*time.Timer
	waiters   map[uint64]model.Semaphore
	released  int
	hangCount int
}

// NewDevice creates a device whose atoms complete after jobDuration.
func NewDevice(jobDuration time.Duration, logger *slog.Logger) *Device {
	return &Device{
		logger:      logger.With("component", "sim"),
		jobDuration: jobDuration,
		hangs:       make(map[model.AtomID]bool),
		inflight:    make(map[model.AtomID]*time.Timer),
		waiters:     make(map[uint64]model.Semaphore),
	}
}

// Bind connects the device to the sink delivering its completions. Must be
// called before the first atom is enqueued.
func (d *Device) Bind(sink CompletionSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sink = sink
}

// MarkHang makes the atom never complete on its own, exercising the timeout
// escalation path. A hung atom ignores soft stops and only responds to a
// hard stop.
func (d *Device) MarkHang(id model.AtomID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hangs[id] = true
}

// RunAtom starts the atom on its assigned slot. Fire-and-forget: the
// completion arrives later through the sink.
func (d *Device) RunAtom(atom *model.Atom) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hangs[atom.ID] {
		d.logger.Debug("atom hung on slot", "atom_id", atom.ID, "slot", atom.Slot)
		return
	}
	slot, sink := atom.Slot, d.sink
	d.inflight[atom.ID] = time.AfterFunc(d.jobDuration, func() {
		d.mu.Lock()
		delete(d.inflight, atom.ID)
		d.mu.Unlock()
		sink.JobCompleted(slot, model.ResultSuccess, 1)
	})
}

// AtomCompleted is the terminal report for an atom. The simulator only logs
// it; a real owner would notify the submitting connection.
func (d *Device) AtomCompleted(atom *model.Atom, result model.ResultCode) {
	d.logger.Debug("atom completed", "atom_id", atom.ID, "result", result.String())
}

// SoftStopAtom requests a cooperative stop. A hung atom stays unresponsive so
// the scheduler escalates to a hard stop.
func (d *Device) SoftStopAtom(atom *model.Atom) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hangs[atom.ID] {
		return
	}
	d.stopLocked(atom, model.ResultTimedOut)
}

// HardStopAtom forcibly terminates the atom; even hung atoms respond.
func (d *Device) HardStopAtom(atom *model.Atom) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.hangs, atom.ID)
	d.stopLocked(atom, model.ResultCancelled)
}

func (d *Device) stopLocked(atom *model.Atom, result model.ResultCode) {
	if t, ok := d.inflight[atom.ID]; ok {
		t.Stop()
		delete(d.inflight, atom.ID)
	}
	slot, sink := atom.Slot, d.sink
	// Deliver off the caller's stack, like a real completion interrupt.
	go sink.JobCompleted(slot, result, 0)
}

// ReleaseMappingsForAtom drops the atom's simulated GPU mappings.
func (d *Device) ReleaseMappingsForAtom(atom *model.Atom) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released++
	d.logger.Debug("mappings released", "atom_id", atom.ID)
}

// GetPlatformPort exposes the device's semaphore port.
func (d *Device) GetPlatformPort() scheduler.PlatformPort {
	return (*port)(d)
}

// port implements scheduler.PlatformPort over the device's waiter table.
type port Device

func (p *port) WaitAsync(sem model.Semaphore) {
	d := (*Device)(p)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.waiters[sem.Key()] = sem
}

// Signal fires the semaphore and, if it is registered on the port, delivers
// the signal to the sink.
func (d *Device) Signal(sem *Semaphore) {
	sem.signal()
	d.mu.Lock()
	_, registered := d.waiters[sem.Key()]
	delete(d.waiters, sem.Key())
	sink := d.sink
	d.mu.Unlock()
	if registered {
		sink.SignalSemaphore(sem.Key())
	}
}

// UpdateGpuActive records the power manager notification.
func (d *Device) UpdateGpuActive(active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = active
	d.logger.Debug("gpu active", "active", active)
}

// Active reports the last power notification.
func (d *Device) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// IsInProtectedMode reports the simulated global execution mode.
func (d *Device) IsInProtectedMode() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.protected
}

// EnterProtectedMode latches protected mode.
func (d *Device) EnterProtectedMode() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.protected = true
	d.logger.Info("entered protected mode")
}

// ExitProtectedMode returns to normal mode. The simulator never fails the
// transition.
func (d *Device) ExitProtectedMode() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.protected = false
	d.logger.Info("exited protected mode")
	return true
}

// OutputHangMessage records hang diagnostics.
func (d *Device) OutputHangMessage() {
	d.mu.Lock()
	d.hangCount++
	n := d.hangCount
	d.mu.Unlock()
	d.logger.Error("device appears hung", "occurrence", n)
}

// HangReports returns how many hang messages the device has recorded.
func (d *Device) HangReports() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hangCount
}
