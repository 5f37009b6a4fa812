package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lazypower/recall/internal/llm"
	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/store"
)

// Server is the recall HTTP API server. Every core memory operation is
// exposed as a route; transport stays out of the engine packages.
type Server struct {
	db        *store.DB
	manager   *memory.Manager
	tracker   *memory.Tracker
	assembler *memory.Assembler
	llm       llm.Client // optional; /reply returns 503 without it
	router    chi.Router
	version   string
	started   time.Time
}

// New creates a new Server. client may be nil.
func New(db *store.DB, mgr *memory.Manager, tracker *memory.Tracker, client llm.Client, version string) *Server {
	s := &Server{
		db:        db,
		manager:   mgr,
		tracker:   tracker,
		assembler: memory.NewAssembler(mgr, tracker),
		llm:       client,
		version:   version,
		started:   time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/memories/short-term", s.handleStoreShortTerm)
		r.Post("/memories/long-term", s.handleStoreLongTerm)
		r.Post("/memories/episodic", s.handleStoreEpisodic)
		r.Post("/memories/{memoryID}/promote", s.handlePromote)
		r.Delete("/memories/{memoryID}", s.handleDeleteMemory)
		r.Get("/memories/search", s.handleSearch)
		r.Get("/memories/stats", s.handleMemoryStats)
		r.Post("/sweep", s.handleSweep)

		r.Post("/conversations/{conversationID}/observe", s.handleObserve)
		r.Get("/conversations/{conversationID}", s.handleSnapshot)

		r.Post("/context", s.handleBuildContext)
		r.Post("/reply", s.handleReply)

		r.Get("/personality", s.handleGetPersonality)
		r.Put("/personality", s.handleUpdatePersonality)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, memory.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, memory.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, memory.ErrPrecondition):
		status = http.StatusConflict
	case errors.Is(err, memory.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
