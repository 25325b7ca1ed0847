package scheduler

import "github.com/me/gpusched/pkg/model"

// Owner executes atoms on hardware on behalf of the scheduler. Every method
// is fire-and-forget: RunAtom must not block, and completion is always
// delivered later through JobCompleted, never synchronously inside the call.
type Owner interface {
	// RunAtom starts the atom on the slot the scheduler assigned it.
	RunAtom(atom *model.Atom)

	// AtomCompleted reports that the atom reached a terminal state.
	AtomCompleted(atom *model.Atom, result model.ResultCode)

	// IsInProtectedMode reports the current global hardware execution mode.
	IsInProtectedMode() bool

	// EnterProtectedMode switches the hardware into protected mode. Only
	// called when no atom is executing on any slot.
	EnterProtectedMode()

	// ExitProtectedMode switches the hardware back to normal mode. Only
	// called when no atom is executing. A false return is fatal to the
	// device; the scheduler reports it through OutputHangMessage and leaves
	// recovery to the layer above.
	ExitProtectedMode() bool

	// OutputHangMessage records diagnostics for an unresponsive device.
	OutputHangMessage()
}

// AtomStopper is an optional Owner capability for stopping dispatched atoms.
// SoftStopAtom requests a cooperative stop; HardStopAtom forcibly terminates.
// Either way the atom still finalizes through the JobCompleted path.
type AtomStopper interface {
	SoftStopAtom(atom *model.Atom)
	HardStopAtom(atom *model.Atom)
}

// MappingReleaser is an optional Owner capability for dropping an atom's GPU
// memory mappings during connection teardown.
type MappingReleaser interface {
	ReleaseMappingsForAtom(atom *model.Atom)
}

// PlatformPort delivers semaphore signals for soft atoms. Registered
// semaphores surface later as PlatformPortSignaled calls keyed by
// Semaphore.Key.
type PlatformPort interface {
	WaitAsync(sem model.Semaphore)
}

// PortProvider is an optional Owner capability exposing the platform port.
type PortProvider interface {
	GetPlatformPort() PlatformPort
}

// PowerObserver is an optional Owner capability notified whenever the GPU
// transitions between active (a slot busy or work queued) and idle.
type PowerObserver interface {
	UpdateGpuActive(active bool)
}
