// Package api provides the HTTP surface: session reads, group and queue
// orchestration, bookmarks, file-change lookups, and the WebSocket endpoint.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/codex-agent/codexd/internal/auth"
	"github.com/codex-agent/codexd/internal/config"
	"github.com/codex-agent/codexd/internal/hub"
	"github.com/codex-agent/codexd/internal/index"
	"github.com/codex-agent/codexd/internal/rollout"
	"github.com/codex-agent/codexd/internal/runner"
	"github.com/codex-agent/codexd/internal/search"
	"github.com/codex-agent/codexd/internal/store"
)

// Version is stamped by the build; "dev" otherwise.
var Version = "dev"

// Server is the HTTP API server.
type Server struct {
	cfg         *config.Config
	idx         *index.Index
	groups      *store.GroupStore
	queues      *store.QueueStore
	bookmarks   *store.BookmarkStore
	fileChanges *store.FileChangeStore
	tokens      *auth.TokenStore
	runner      *runner.Runner
	hub         *hub.Hub
	logger      *slog.Logger
	mux         *chi.Mux
	startTime   time.Time

	stopMu     sync.Mutex
	queueStops map[string]*runner.StopSignal
}

// Deps bundles the server's collaborators.
type Deps struct {
	Config      *config.Config
	Index       *index.Index
	Groups      *store.GroupStore
	Queues      *store.QueueStore
	Bookmarks   *store.BookmarkStore
	FileChanges *store.FileChangeStore
	Tokens      *auth.TokenStore
	Runner      *runner.Runner
	Hub         *hub.Hub
}

// NewServer wires the route table.
func NewServer(d Deps, logger *slog.Logger) *Server {
	srv := &Server{
		cfg:         d.Config,
		idx:         d.Index,
		groups:      d.Groups,
		queues:      d.Queues,
		bookmarks:   d.Bookmarks,
		fileChanges: d.FileChanges,
		tokens:      d.Tokens,
		runner:      d.Runner,
		hub:         d.Hub,
		logger:      logger.With("component", "api"),
		startTime:   time.Now(),
		queueStops:  make(map[string]*runner.StopSignal),
	}

	mux := chi.NewRouter()
	mux.Use(recovererMiddleware(srv.logger))
	mux.Use(chimw.RealIP)
	mux.Use(corsMiddleware)

	// Unauthenticated surface.
	mux.Get("/health", srv.handleHealth)
	mux.Get("/status", srv.handleStatus)
	mux.Get("/ws", srv.hub.ServeWS)

	// Authenticated API routes.
	mux.Group(func(r chi.Router) {
		r.Use(srv.authMiddleware)

		r.With(srv.require("session:read")).Get("/api/sessions", srv.handleListSessions)
		r.With(srv.require("session:read")).Get("/api/sessions/search", srv.handleSearchSessions)
		r.With(srv.require("session:read")).Get("/api/sessions/{id}", srv.handleGetSession)
		r.With(srv.require("session:read")).Get("/api/sessions/{id}/search", srv.handleSearchSession)
		r.With(srv.require("session:read")).Get("/api/sessions/{id}/events", srv.handleSessionEvents)
		r.With(srv.require("session:read")).Get("/api/sessions/{id}/activity", srv.handleSessionActivity)
		r.With(srv.require("session:create")).Post("/api/sessions/run", srv.handleRunSession)

		r.With(srv.require("group:read")).Get("/api/groups", srv.handleListGroups)
		r.With(srv.require("group:create")).Post("/api/groups", srv.handleCreateGroup)
		r.With(srv.require("group:read")).Get("/api/groups/{id}", srv.handleGetGroup)
		r.With(srv.require("group:delete")).Delete("/api/groups/{id}", srv.handleDeleteGroup)
		r.With(srv.require("group:update")).Post("/api/groups/{id}/sessions", srv.handleAddGroupSessions)
		r.With(srv.require("group:update")).Delete("/api/groups/{id}/sessions/{sessionID}", srv.handleRemoveGroupSession)
		r.With(srv.require("group:run")).Post("/api/groups/{id}/run", srv.handleRunGroup)
		r.With(srv.require("group:update")).Post("/api/groups/{id}/pause", srv.handlePauseGroup)
		r.With(srv.require("group:update")).Post("/api/groups/{id}/resume", srv.handleResumeGroup)

		r.With(srv.require("queue:read")).Get("/api/queues", srv.handleListQueues)
		r.With(srv.require("queue:create")).Post("/api/queues", srv.handleCreateQueue)
		r.With(srv.require("queue:read")).Get("/api/queues/{id}", srv.handleGetQueue)
		r.With(srv.require("queue:delete")).Delete("/api/queues/{id}", srv.handleDeleteQueue)
		r.With(srv.require("queue:update")).Post("/api/queues/{id}/prompts", srv.handleAddPrompt)
		r.With(srv.require("queue:update")).Patch("/api/queues/{id}/prompts/{promptID}", srv.handleUpdatePrompt)
		r.With(srv.require("queue:update")).Delete("/api/queues/{id}/prompts/{promptID}", srv.handleRemovePrompt)
		r.With(srv.require("queue:update")).Post("/api/queues/{id}/prompts/{promptID}/move", srv.handleMovePrompt)
		r.With(srv.require("queue:run")).Post("/api/queues/{id}/run", srv.handleRunQueue)
		r.With(srv.require("queue:run")).Post("/api/queues/{id}/stop", srv.handleStopQueue)
		r.With(srv.require("queue:update")).Post("/api/queues/{id}/pause", srv.handlePauseQueue)
		r.With(srv.require("queue:update")).Post("/api/queues/{id}/resume", srv.handleResumeQueue)

		r.With(srv.require("session:read")).Get("/api/files/find", srv.handleFindFile)
		r.With(srv.require("session:read")).Get("/api/files/{id}", srv.handleFileChanges)
		r.With(srv.require("session:read")).Post("/api/files/rebuild", srv.handleRebuildFiles)

		r.With(srv.require("bookmark:read")).Get("/api/bookmarks", srv.handleListBookmarks)
		r.With(srv.require("bookmark:create")).Post("/api/bookmarks", srv.handleCreateBookmark)
		r.With(srv.require("bookmark:read")).Get("/api/bookmarks/{id}", srv.handleGetBookmark)
		r.With(srv.require("bookmark:update")).Patch("/api/bookmarks/{id}", srv.handleUpdateBookmark)
		r.With(srv.require("bookmark:delete")).Delete("/api/bookmarks/{id}", srv.handleDeleteBookmark)
	})

	srv.mux = mux
	return srv
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":       Version,
		"uptimeSeconds": int64(time.Since(s.startTime).Seconds()),
		"codexHome":     s.cfg.CodexHome,
		"transport":     s.cfg.Transport,
		"sessionCount":  len(rollout.DiscoverPaths(s.cfg.CodexHome)),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeStoreError maps store and domain sentinels onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, index.ErrSessionNotFound),
		errors.Is(err, store.ErrGroupNotFound),
		errors.Is(err, store.ErrQueueNotFound),
		errors.Is(err, store.ErrPromptNotFound),
		errors.Is(err, store.ErrBookmarkNotFound),
		errors.Is(err, auth.ErrTokenNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrBookmarkInvalid),
		errors.Is(err, search.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, runner.ErrGroupPaused),
		errors.Is(err, auth.ErrAlreadyRevoked):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 10*1024*1024))
	return dec.Decode(v)
}
