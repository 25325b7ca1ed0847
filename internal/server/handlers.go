package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/me/gpusched/internal/sim"
	"github.com/me/gpusched/internal/trace"
	"github.com/me/gpusched/pkg/model"
)

type healthResponse struct {
	Status    string `json:"status"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	JobSlots  uint32 `json:"job_slots"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	snap, err := s.loop.Snapshot()
	if err != nil {
		respondError(w, reqID, http.StatusServiceUnavailable, "LOOP_STOPPED", err.Error())
		return
	}
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		JobSlots:  snap.JobSlots,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	snap, err := s.loop.Snapshot()
	if err != nil {
		respondError(w, reqID, http.StatusServiceUnavailable, "LOOP_STOPPED", err.Error())
		return
	}
	respondOK(w, reqID, snap)
}

type connectionResponse struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req struct {
		Label string `json:"label"`
	}
	if r.Body != nil {
		// An empty body is fine; the label is optional.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	conn := model.NewConnection(req.Label)
	s.mu.Lock()
	s.connections[conn.ID] = conn
	s.mu.Unlock()

	respondCreated(w, reqID, connectionResponse{ID: conn.ID, Label: conn.Label})
}

func (s *Server) handleCancelConnection(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	conn, ok := s.connections[id]
	if ok {
		delete(s.connections, id)
	}
	s.mu.Unlock()
	if !ok {
		respondError(w, reqID, http.StatusNotFound, "NOT_FOUND", "connection '"+id+"' not found")
		return
	}

	if err := s.loop.CancelConnection(conn); err != nil {
		respondError(w, reqID, http.StatusServiceUnavailable, "LOOP_STOPPED", err.Error())
		return
	}
	respondOK(w, reqID, map[string]string{"cancelled": id})
}

type submitAtomRequest struct {
	ConnectionID string   `json:"connection_id"`
	Affinity     uint32   `json:"affinity"`
	Protected    bool     `json:"protected"`
	Soft         bool     `json:"soft"`
	Deps         []string `json:"deps,omitempty"`
	Hang         bool     `json:"hang,omitempty"`
}

type submitAtomResponse struct {
	ID           string `json:"id"`
	ConnectionID string `json:"connection_id"`
	SemaphoreKey uint64 `json:"semaphore_key,omitempty"`
}

func (s *Server) handleSubmitAtom(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req submitAtomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, "VALIDATION_ERROR", "invalid JSON: "+err.Error())
		return
	}

	s.mu.Lock()
	conn, ok := s.connections[req.ConnectionID]
	if !ok {
		s.mu.Unlock()
		respondError(w, reqID, http.StatusNotFound, "NOT_FOUND", "connection '"+req.ConnectionID+"' not found")
		return
	}
	var deps []*model.Atom
	for _, depID := range req.Deps {
		dep, ok := s.atoms[model.AtomID(depID)]
		if !ok {
			s.mu.Unlock()
			respondError(w, reqID, http.StatusNotFound, "NOT_FOUND", "dependency atom '"+depID+"' not found")
			return
		}
		deps = append(deps, dep)
	}
	s.mu.Unlock()

	var atom *model.Atom
	var semKey uint64
	if req.Soft {
		sem := sim.NewSemaphore()
		atom = model.NewSoftAtom(conn, sem, deps...)
		semKey = sem.Key()
		s.mu.Lock()
		s.semaphores[atom.ID] = sem
		s.mu.Unlock()
	} else {
		atom = model.NewAtom(conn, model.SlotAffinity(req.Affinity), req.Protected, deps...)
	}

	if req.Hang {
		s.device.MarkHang(atom.ID)
	}

	if err := s.loop.EnqueueAtom(atom); err != nil {
		respondError(w, reqID, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	s.mu.Lock()
	s.atoms[atom.ID] = atom
	s.mu.Unlock()

	respondCreated(w, reqID, submitAtomResponse{
		ID:           string(atom.ID),
		ConnectionID: conn.ID,
		SemaphoreKey: semKey,
	})
}

func (s *Server) handleSignalAtom(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := model.AtomID(chi.URLParam(r, "id"))

	s.mu.Lock()
	sem, ok := s.semaphores[id]
	if ok {
		delete(s.semaphores, id)
	}
	s.mu.Unlock()
	if !ok {
		respondError(w, reqID, http.StatusNotFound, "NOT_FOUND", "no semaphore for atom '"+string(id)+"'")
		return
	}

	s.device.Signal(sem)
	respondOK(w, reqID, map[string]any{"signaled": string(id), "key": sem.Key()})
}

func (s *Server) handleListAtoms(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts := trace.ListOptions{
		ConnectionID: r.URL.Query().Get("connection_id"),
		State:        r.URL.Query().Get("state"),
		Limit:        100,
	}
	atoms, err := s.store.ListAtoms(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondOK(w, reqID, atoms)
}

func (s *Server) handleGetAtom(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	rec, err := s.store.GetAtom(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if rec == nil {
		respondError(w, reqID, http.StatusNotFound, "NOT_FOUND", "atom '"+id+"' not found")
		return
	}
	respondOK(w, reqID, rec)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	events, err := s.store.ListEvents(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondOK(w, reqID, events)
}
