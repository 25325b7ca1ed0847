// Package server exposes the scheduler's debug/control API: health, a live
// scheduler snapshot, atom lifecycle traces, and synthetic workload
// submission against the simulated device.
package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/gpusched/internal/devloop"
	"github.com/me/gpusched/internal/sim"
	"github.com/me/gpusched/internal/trace"
	"github.com/me/gpusched/pkg/model"
)

// Server is the gpusched REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	startTime time.Time

	loop   *devloop.Loop
	store  trace.Store
	device *sim.Device

	// Live registries for synthetic submissions. Atom references stay here so
	// later submissions can depend on them; terminal atoms keep their final
	// state for dependency checks.
	mu          sync.Mutex
	connections map[string]*model.Connection
	atoms       map[model.AtomID]*model.Atom
	semaphores  map[model.AtomID]*sim.Semaphore
}

// New creates a Server with all routes registered.
func New(loop *devloop.Loop, store trace.Store, device *sim.Device, logger *slog.Logger) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		logger:      logger.With("component", "server"),
		startTime:   time.Now(),
		loop:        loop,
		store:       store,
		device:      device,
		connections: make(map[string]*model.Connection),
		atoms:       make(map[model.AtomID]*model.Atom),
		semaphores:  make(map[model.AtomID]*sim.Semaphore),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/connections", func(r chi.Router) {
			r.Post("/", s.handleCreateConnection)
			r.Delete("/{id}", s.handleCancelConnection)
		})

		r.Route("/atoms", func(r chi.Router) {
			r.Get("/", s.handleListAtoms)
			r.Post("/", s.handleSubmitAtom)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetAtom)
				r.Get("/events", s.handleListEvents)
				r.Post("/signal", s.handleSignalAtom)
			})
		})
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
