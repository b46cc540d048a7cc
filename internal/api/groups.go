package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codex-agent/codexd/internal/runner"
)

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.groups.List()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

type createGroupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	SessionIDs  []string `json:"sessionIds,omitempty"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	g, err := s.groups.Add(req.Name, req.Description, req.SessionIDs)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.groups.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.groups.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.groups.Delete(g.ID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleAddGroupSessions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionIDs []string `json:"sessionIds"`
	}
	if err := decodeBody(r, &req); err != nil || len(req.SessionIDs) == 0 {
		writeError(w, http.StatusBadRequest, "sessionIds are required")
		return
	}

	g, err := s.groups.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	g, err = s.groups.AddSessions(g.ID, req.SessionIDs)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleRemoveGroupSession(w http.ResponseWriter, r *http.Request) {
	g, err := s.groups.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	g, err = s.groups.RemoveSession(g.ID, chi.URLParam(r, "sessionID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handlePauseGroup(w http.ResponseWriter, r *http.Request) {
	s.setGroupPaused(w, r, true)
}

func (s *Server) handleResumeGroup(w http.ResponseWriter, r *http.Request) {
	s.setGroupPaused(w, r, false)
}

func (s *Server) setGroupPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	g, err := s.groups.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	g, err = s.groups.SetPaused(g.ID, paused)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

type runGroupRequest struct {
	Prompt        string   `json:"prompt"`
	MaxConcurrent int      `json:"maxConcurrent,omitempty"`
	Model         string   `json:"model,omitempty"`
	Sandbox       string   `json:"sandbox,omitempty"`
	Approval      string   `json:"approval,omitempty"`
	FullAuto      bool     `json:"fullAuto,omitempty"`
	Overrides     []string `json:"overrides,omitempty"`
}

// handleRunGroup fans the prompt out across the group and streams progress
// events as newline-delimited JSON. Client disconnect cancels in-flight runs.
func (s *Server) handleRunGroup(w http.ResponseWriter, r *http.Request) {
	var req runGroupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	g, err := s.groups.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	events, err := s.runner.RunGroup(r.Context(), *g, req.Prompt, req.MaxConcurrent, runner.Options{
		Binary:          s.cfg.AgentBinary,
		Model:           req.Model,
		Sandbox:         req.Sandbox,
		ApprovalMode:    req.Approval,
		FullAuto:        req.FullAuto,
		ConfigOverrides: req.Overrides,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	streamNDJSON(w, func(enc *json.Encoder, flush func()) {
		for ev := range events {
			if enc.Encode(ev) != nil {
				return
			}
			flush()
		}
	})
}

// streamNDJSON sets up a chunked application/x-ndjson response.
func streamNDJSON(w http.ResponseWriter, fn func(enc *json.Encoder, flush func())) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}
	fn(json.NewEncoder(w), flush)
}
