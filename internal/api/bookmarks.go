package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codex-agent/codexd/internal/store"
)

func (s *Server) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	bookmarks, err := s.bookmarks.List(r.URL.Query().Get("sessionId"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookmarks": bookmarks})
}

type bookmarkRequest struct {
	Type          string   `json:"type"`
	SessionID     string   `json:"sessionId"`
	MessageID     string   `json:"messageId,omitempty"`
	FromMessageID string   `json:"fromMessageId,omitempty"`
	ToMessageID   string   `json:"toMessageId,omitempty"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

func (s *Server) handleCreateBookmark(w http.ResponseWriter, r *http.Request) {
	var req bookmarkRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b, err := s.bookmarks.Add(store.Bookmark{
		Type:          store.BookmarkType(req.Type),
		SessionID:     req.SessionID,
		MessageID:     req.MessageID,
		FromMessageID: req.FromMessageID,
		ToMessageID:   req.ToMessageID,
		Name:          req.Name,
		Description:   req.Description,
		Tags:          req.Tags,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleGetBookmark(w http.ResponseWriter, r *http.Request) {
	b, err := s.bookmarks.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleUpdateBookmark(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        *string   `json:"name,omitempty"`
		Description *string   `json:"description,omitempty"`
		Tags        *[]string `json:"tags,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b, err := s.bookmarks.Update(chi.URLParam(r, "id"), func(b *store.Bookmark) {
		if req.Name != nil {
			b.Name = *req.Name
		}
		if req.Description != nil {
			b.Description = *req.Description
		}
		if req.Tags != nil {
			b.Tags = *req.Tags
		}
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeleteBookmark(w http.ResponseWriter, r *http.Request) {
	if err := s.bookmarks.Delete(chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
