package sim

import "sync/atomic"

// Semaphore is a software semaphore for soft atoms. Keys are allocated from a
// process-wide counter so every semaphore maps to a distinct port key.
type Semaphore struct {
	key      uint64
	signaled atomic.Bool
}

var nextKey atomic.Uint64

// NewSemaphore allocates a semaphore with a fresh port key.
func NewSemaphore() *Semaphore {
	return &Semaphore{key: nextKey.Add(1)}
}

// Key returns the platform port key.
func (s *Semaphore) Key() uint64 {
	return s.key
}

// Signaled reports whether the semaphore has fired.
func (s *Semaphore) Signaled() bool {
	return s.signaled.Load()
}

func (s *Semaphore) signal() {
	s.signaled.Store(true)
}
