// Package observer is a thin HTTP+WS bridge that tails a session's
// output for a remote viewer, on top of the core Session/registry.
package observer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/tapehouse/controltape/internal/audit"
	"github.com/tapehouse/controltape/internal/events"
	"github.com/tapehouse/controltape/internal/registry"
	"github.com/tapehouse/controltape/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	},
}

// Server serves a health check, session CRUD, and a per-session
// websocket tail endpoint over a registry, with every session it
// creates wired to an optional NATS event bus and Postgres audit trail.
type Server struct {
	reg    *registry.Registry
	router *chi.Mux
	http   *http.Server

	events *events.Bus
	audit  *audit.DB
}

// New wires routes against reg. natsURL and databaseURL configure the
// lifecycle event bus and audit trail every session created through
// POST /sessions is attached to; either may be empty to disable that
// enrichment layer. Routes are: GET /health, GET/POST /sessions, POST
// /sessions/cleanup, GET /ws/{id}.
func New(reg *registry.Registry, natsURL, databaseURL string) (*Server, error) {
	bus, err := events.NewBus(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	var db *audit.DB
	if databaseURL != "" {
		db, err = audit.Open(databaseURL)
		if err != nil {
			bus.Close()
			return nil, fmt.Errorf("failed to open audit database: %w", err)
		}
	}

	s := &Server{reg: reg, router: chi.NewRouter(), events: bus, audit: db}

	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	s.router.Get("/sessions", s.handleSessions)
	s.router.Post("/sessions", s.handleCreate)
	s.router.Post("/sessions/cleanup", s.handleCleanup)
	s.router.Get("/ws/{id}", s.handleTail)

	return s, nil
}

// sessionOpts returns the default options every registry-managed
// session is constructed with, carrying this server's event bus and
// audit trail through to the hook points Session already calls them
// from.
func (s *Server) sessionOpts() []session.Option {
	return []session.Option{session.WithEvents(s.events), session.WithAudit(s.audit)}
}

// ListenAndServe starts the HTTP server on addr. Blocks until the
// server stops or errors.
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.router}
	return s.http.ListenAndServe()
}

// Close shuts the HTTP server down, then the event bus and audit
// database behind it.
func (s *Server) Close() error {
	if s.audit != nil {
		s.audit.Close()
	}
	if s.events != nil {
		s.events.Close()
	}
	if s.http == nil {
		return nil
	}
	return s.http.Close()
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	descs := s.reg.List(false)
	writeJSON(w, descs)
}

type createSessionRequest struct {
	Command string `json:"command"`
	Reuse   bool   `json:"reuse"`
}

// handleCreate starts (or, with reuse, adopts) a session under this
// server's registry, wired to the server's event bus and audit trail.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Command == "" {
		http.Error(w, "command is required", http.StatusBadRequest)
		return
	}

	sess, err := s.reg.Control(req.Command, req.Reuse, s.sessionOpts()...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"id": sess.ID()})
}

// handleCleanup runs registry.CleanupSessions with force/max_age query
// params (force=1, max_age=<seconds>), then reaps any stray zombie
// child processes, and reports both counts.
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "1"
	maxAge := 10 * time.Minute
	if v := r.URL.Query().Get("max_age"); v != "" {
		if secs, err := time.ParseDuration(v + "s"); err == nil {
			maxAge = secs
		}
	}
	n := s.reg.CleanupSessions(force, maxAge)
	zombies := registry.CleanupZombies()
	writeJSON(w, map[string]int{"closed": n, "zombies_reaped": zombies})
}

// handleTail upgrades to a websocket and streams the session's
// recent output, then every new chunk appended after the handler
// starts, polling the session's GetFullOutput at a fixed interval (the
// session has no internal subscriber list, so tailing is poll-based).
func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess := s.reg.Get(id)
	if sess == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var sent int
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for range tick.C {
		out := sess.GetFullOutput()
		if len(out) > sent {
			if err := conn.WriteMessage(websocket.TextMessage, out[sent:]); err != nil {
				return
			}
			sent = len(out)
		}
		if !sess.IsAlive() && sent >= len(out) {
			return
		}
	}
}
