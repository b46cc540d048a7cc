package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codex-agent/codexd/internal/filechange"
	"github.com/codex-agent/codexd/internal/rollout"
	"github.com/codex-agent/codexd/internal/store"
)

// handleFindFile resolves which session touched a file path.
func (s *Server) handleFindFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	sess, err := s.idx.FindByFile(r.Context(), path)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleFileChanges returns the aggregated file changes for a session,
// extracting and caching them on first access.
func (s *Server) handleFileChanges(w http.ResponseWriter, r *http.Request) {
	sess, err := s.idx.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	changes, ok, err := s.fileChanges.Get(sess.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !ok {
		lines, err := rollout.ReadAll(sess.RolloutPath)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "read rollout: "+err.Error())
			return
		}
		changes = toChangedFiles(filechange.Extract(lines))
		if err := s.fileChanges.Put(sess.ID, changes); err != nil {
			writeStoreError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": sess.ID, "files": changes})
}

// handleRebuildFiles rescans every rollout and replaces the cache wholesale.
func (s *Server) handleRebuildFiles(w http.ResponseWriter, r *http.Request) {
	sessions := make(map[string][]store.ChangedFile)
	for _, path := range rollout.DiscoverPaths(s.cfg.CodexHome) {
		id := rollout.SessionIDFromPath(path)
		if id == "" {
			continue
		}
		lines, err := rollout.ReadAll(path)
		if err != nil {
			s.logger.Warn("rebuild: skipping unreadable rollout", "path", path, "error", err)
			continue
		}
		sessions[id] = toChangedFiles(filechange.Extract(lines))
	}

	if err := s.fileChanges.Replace(sessions); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": len(sessions)})
}

func toChangedFiles(changes []filechange.Change) []store.ChangedFile {
	out := make([]store.ChangedFile, 0, len(changes))
	for _, c := range changes {
		out = append(out, store.ChangedFile{
			Path:         c.Path,
			Operation:    string(c.Operation),
			ChangeCount:  c.ChangeCount,
			LastModified: c.LastModified,
		})
	}
	return out
}
