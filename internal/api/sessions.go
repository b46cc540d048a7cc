package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/codex-agent/codexd/internal/activity"
	"github.com/codex-agent/codexd/internal/index"
	"github.com/codex-agent/codexd/internal/rollout"
	"github.com/codex-agent/codexd/internal/runner"
	"github.com/codex-agent/codexd/internal/search"
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := index.Filter{
		Source:    q.Get("source"),
		Cwd:       q.Get("cwd"),
		GitBranch: q.Get("branch"),
	}
	sort := index.Sort{Key: q.Get("sort"), Desc: q.Get("order") != "asc"}
	page := index.Page{Limit: intParam(q.Get("limit"), 50), Offset: intParam(q.Get("offset"), 0)}

	res, err := s.idx.List(r.Context(), filter, sort, page)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.idx.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess, err := s.idx.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	lines, err := rollout.ReadAll(sess.RolloutPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read rollout: "+err.Error())
		return
	}
	events := make([]json.RawMessage, 0, len(lines))
	for _, line := range lines {
		events = append(events, line.Raw)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": sess.ID, "events": events})
}

func (s *Server) handleSessionActivity(w http.ResponseWriter, r *http.Request) {
	sess, err := s.idx.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	lines, err := rollout.ReadAll(sess.RolloutPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read rollout: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, activity.Fold(sess.ID, lines))
}

func searchOptions(r *http.Request) search.Options {
	q := r.URL.Query()
	return search.Options{
		Query:         q.Get("q"),
		Role:          search.Role(q.Get("role")),
		CaseSensitive: q.Get("caseSensitive") == "true",
		Budget: search.Budget{
			MaxBytes:  int64(intParam(q.Get("maxBytes"), 0)),
			MaxEvents: intParam(q.Get("maxEvents"), 0),
			TimeoutMs: intParam(q.Get("timeoutMs"), 0),
		},
	}
}

func (s *Server) handleSearchSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.idx.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	res, err := search.File(sess.RolloutPath, searchOptions(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": sess.ID, "result": res})
}

type sessionMatch struct {
	SessionID string         `json:"sessionId"`
	Path      string         `json:"path"`
	Result    *search.Result `json:"result"`
}

func (s *Server) handleSearchSessions(w http.ResponseWriter, r *http.Request) {
	opts := searchOptions(r)
	maxSessions := intParam(r.URL.Query().Get("sessions"), 50)

	matches := []sessionMatch{}
	scanned := 0
	for _, path := range rollout.DiscoverPaths(s.cfg.CodexHome) {
		if scanned >= maxSessions {
			break
		}
		scanned++
		res, err := search.File(path, opts)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if res.Matched {
			matches = append(matches, sessionMatch{
				SessionID: rollout.SessionIDFromPath(path),
				Path:      path,
				Result:    res,
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches, "scannedSessions": scanned})
}

type runSessionRequest struct {
	Prompt     string   `json:"prompt"`
	ResumeID   string   `json:"resumeId,omitempty"`
	NthMessage int      `json:"nthMessage,omitempty"`
	Model      string   `json:"model,omitempty"`
	Sandbox    string   `json:"sandbox,omitempty"`
	Approval   string   `json:"approval,omitempty"`
	FullAuto   bool     `json:"fullAuto,omitempty"`
	WorkDir    string   `json:"workDir,omitempty"`
	Images     []image  `json:"images,omitempty"`
	Overrides  []string `json:"overrides,omitempty"`
}

// handleRunSession spawns a fresh, resumed, or forked agent run and returns
// the pid without waiting for completion.
func (s *Server) handleRunSession(w http.ResponseWriter, r *http.Request) {
	var req runSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	imagePaths, err := materializeImages(req.Images)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The run outlives the request; do not tie the child to r.Context().
	handle, err := s.runner.Spawn(context.Background(), runner.Request{
		Prompt:     req.Prompt,
		ResumeID:   req.ResumeID,
		NthMessage: req.NthMessage,
	}, runner.Options{
		Binary:          s.cfg.AgentBinary,
		Model:           req.Model,
		Sandbox:         req.Sandbox,
		ApprovalMode:    req.Approval,
		FullAuto:        req.FullAuto,
		WorkDir:         req.WorkDir,
		Images:          imagePaths,
		ConfigOverrides: req.Overrides,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"pid": handle.PID})
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
