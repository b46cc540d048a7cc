package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codex-agent/codexd/internal/runner"
	"github.com/codex-agent/codexd/internal/store"
)

func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	queues, err := s.queues.List()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queues": queues})
}

func (s *Server) handleCreateQueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		ProjectPath string `json:"projectPath"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.ProjectPath == "" {
		writeError(w, http.StatusBadRequest, "name and projectPath are required")
		return
	}

	q, err := s.queues.Add(req.Name, req.ProjectPath)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	q, err := s.queues.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleDeleteQueue(w http.ResponseWriter, r *http.Request) {
	q, err := s.queues.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.queues.Delete(q.ID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleAddPrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string  `json:"prompt"`
		Mode   string  `json:"mode,omitempty"`
		Images []image `json:"images,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	mode := store.PromptMode(req.Mode)
	if mode != "" && mode != store.ModeAuto && mode != store.ModeManual {
		writeError(w, http.StatusBadRequest, "mode must be auto or manual")
		return
	}

	imagePaths, err := materializeImages(req.Images)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := s.queues.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	q, err = s.queues.AddPrompt(q.ID, req.Prompt, mode, imagePaths)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt *string `json:"prompt,omitempty"`
		Mode   *string `json:"mode,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Mode != nil {
		mode := store.PromptMode(*req.Mode)
		if mode != store.ModeAuto && mode != store.ModeManual {
			writeError(w, http.StatusBadRequest, "mode must be auto or manual")
			return
		}
	}

	q, err := s.queues.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	q, err = s.queues.UpdatePrompt(q.ID, chi.URLParam(r, "promptID"), func(p *store.QueuePrompt) {
		if req.Prompt != nil {
			p.Prompt = *req.Prompt
		}
		if req.Mode != nil {
			p.Mode = store.PromptMode(*req.Mode)
		}
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleRemovePrompt(w http.ResponseWriter, r *http.Request) {
	q, err := s.queues.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	q, err = s.queues.RemovePrompt(q.ID, chi.URLParam(r, "promptID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleMovePrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ToIndex int `json:"toIndex"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	q, err := s.queues.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	q, err = s.queues.MovePrompt(q.ID, chi.URLParam(r, "promptID"), req.ToIndex)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// handleRunQueue drains the queue sequentially and streams per-prompt events
// as newline-delimited JSON. A concurrent POST to /stop flips the queue's
// stop signal, observed between prompts.
func (s *Server) handleRunQueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model     string   `json:"model,omitempty"`
		Sandbox   string   `json:"sandbox,omitempty"`
		Approval  string   `json:"approval,omitempty"`
		FullAuto  bool     `json:"fullAuto,omitempty"`
		Overrides []string `json:"overrides,omitempty"`
	}
	// An empty body runs with defaults.
	_ = decodeBody(r, &req)

	q, err := s.queues.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	stop := &runner.StopSignal{}
	s.stopMu.Lock()
	if _, running := s.queueStops[q.ID]; running {
		s.stopMu.Unlock()
		writeError(w, http.StatusConflict, "queue is already running")
		return
	}
	s.queueStops[q.ID] = stop
	s.stopMu.Unlock()
	defer func() {
		s.stopMu.Lock()
		delete(s.queueStops, q.ID)
		s.stopMu.Unlock()
	}()

	events, err := s.runner.RunQueue(r.Context(), s.queues, q.ID, runner.Options{
		Binary:          s.cfg.AgentBinary,
		Model:           req.Model,
		Sandbox:         req.Sandbox,
		ApprovalMode:    req.Approval,
		FullAuto:        req.FullAuto,
		ConfigOverrides: req.Overrides,
	}, stop)
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

func (s *Server) handleStopQueue(w http.ResponseWriter, r *http.Request) {
	q, err := s.queues.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.stopMu.Lock()
	stop := s.queueStops[q.ID]
	s.stopMu.Unlock()
	if stop == nil {
		writeError(w, http.StatusConflict, "queue is not running")
		return
	}
	stop.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handlePauseQueue(w http.ResponseWriter, r *http.Request) {
	s.setQueuePaused(w, r, true)
}

func (s *Server) handleResumeQueue(w http.ResponseWriter, r *http.Request) {
	s.setQueuePaused(w, r, false)
}

func (s *Server) setQueuePaused(w http.ResponseWriter, r *http.Request, paused bool) {
	q, err := s.queues.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	q, err = s.queues.SetPaused(q.ID, paused)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}
