// Package api provides the admin HTTP surface of the opinionnet tools: health, registry
// contents, local user state, polarization readings and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"opinionnet/analytics/polarimeter"
	"opinionnet/swarm/protocol"
	"opinionnet/swarm/registry"

	log "github.com/sirupsen/logrus"
)

// User is the local user state exposed on /api/node, usually a *peer.Node.
type User interface {
	ID() string
	Opinion() float64
	Influence() float64
	Port() int
}

type UserStatus struct {
	ID        string  `json:"id"`
	Opinion   float64 `json:"opinion"`
	Influence float64 `json:"influence"`
	Port      int     `json:"port"`
}

type Server struct {
	registry *registry.Registry

	mu     sync.RWMutex
	users  []User
	meters []*polarimeter.Meter
}

func NewServer() *Server {
	return &Server{}
}

// SetRegistry exposes the registry contents on /api/users.
func (s *Server) SetRegistry(r *registry.Registry) { s.registry = r }

func (s *Server) AddUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, u)
}

func (s *Server) AddMeter(m *polarimeter.Meter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meters = append(s.meters, m)
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/users", s.handleListUsers)
		r.Get("/users/{id}", s.handleGetUser)
		r.Get("/node", s.handleNode)
		r.Get("/polarization", s.handlePolarization)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Serve runs the admin server on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  time.Minute,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	log.Infof("Admin API listening on http://%s", listener.Addr())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, http.StatusNotFound, "no registry in this process")
		return
	}
	entries, err := s.registry.Entries()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeError(w, http.StatusNotFound, "no registry in this process")
		return
	}
	id := chi.URLParam(r, "id")
	rec, err := s.registry.Lookup(id)
	switch {
	case errors.Is(err, protocol.ErrNotFound):
		writeError(w, http.StatusNotFound, "user "+id+" not registered")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	out := make([]UserStatus, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, UserStatus{
			ID:        u.ID(),
			Opinion:   u.Opinion(),
			Influence: u.Influence(),
			Port:      u.Port(),
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePolarization(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	out := make([]*polarimeter.Measurement, 0, len(s.meters))
	for _, m := range s.meters {
		if last := m.Last(); last != nil {
			out = append(out, last)
		}
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
