package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrBookmarkNotFound is returned when no bookmark matches the id.
	ErrBookmarkNotFound = errors.New("bookmark not found")
	// ErrBookmarkInvalid is returned when a bookmark violates its
	// type-conditioned field rules.
	ErrBookmarkInvalid = errors.New("invalid bookmark")
)

const bookmarksFile = "bookmarks.json"

type bookmarksDoc struct {
	Bookmarks []Bookmark `json:"bookmarks"`
}

// BookmarkStore is the single writer for bookmarks.json.
type BookmarkStore struct {
	path string
	mu   sync.Mutex
}

// NewBookmarkStore creates a store rooted at the given config directory.
func NewBookmarkStore(configDir string) *BookmarkStore {
	return &BookmarkStore{path: filepath.Join(configDir, bookmarksFile)}
}

func (s *BookmarkStore) load() (*bookmarksDoc, error) {
	doc := &bookmarksDoc{}
	if _, err := LoadJSON(s.path, doc); err != nil {
		return nil, err
	}
	if doc.Bookmarks == nil {
		doc.Bookmarks = []Bookmark{}
	}
	return doc, nil
}

// List returns all bookmarks, optionally filtered to one session.
func (s *BookmarkStore) List(sessionID string) ([]Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		return doc.Bookmarks, nil
	}
	out := []Bookmark{}
	for _, b := range doc.Bookmarks {
		if b.SessionID == sessionID {
			out = append(out, b)
		}
	}
	return out, nil
}

// Get resolves one bookmark by id.
func (s *BookmarkStore) Get(id string) (*Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.Bookmarks {
		if doc.Bookmarks[i].ID == id {
			return &doc.Bookmarks[i], nil
		}
	}
	return nil, ErrBookmarkNotFound
}

// Add validates and persists a new bookmark. The id and timestamps are
// assigned here.
func (s *BookmarkStore) Add(b Bookmark) (*Bookmark, error) {
	if err := validateBookmark(&b); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	b.ID = uuid.NewString()
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Tags = dedupe(b.Tags)
	doc.Bookmarks = append(doc.Bookmarks, b)
	if err := SaveJSON(s.path, doc); err != nil {
		return nil, err
	}
	return &b, nil
}

// Update applies fn to the matching bookmark, revalidates, and persists.
func (s *BookmarkStore) Update(id string, fn func(*Bookmark)) (*Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.Bookmarks {
		if doc.Bookmarks[i].ID != id {
			continue
		}
		fn(&doc.Bookmarks[i])
		if err := validateBookmark(&doc.Bookmarks[i]); err != nil {
			return nil, err
		}
		doc.Bookmarks[i].Tags = dedupe(doc.Bookmarks[i].Tags)
		doc.Bookmarks[i].UpdatedAt = time.Now().UTC()
		if err := SaveJSON(s.path, doc); err != nil {
			return nil, err
		}
		b := doc.Bookmarks[i]
		return &b, nil
	}
	return nil, ErrBookmarkNotFound
}

// Delete removes a bookmark.
func (s *BookmarkStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	for i := range doc.Bookmarks {
		if doc.Bookmarks[i].ID == id {
			doc.Bookmarks = append(doc.Bookmarks[:i], doc.Bookmarks[i+1:]...)
			return SaveJSON(s.path, doc)
		}
	}
	return ErrBookmarkNotFound
}

func validateBookmark(b *Bookmark) error {
	if b.SessionID == "" {
		return fmt.Errorf("%w: sessionId is required", ErrBookmarkInvalid)
	}
	if b.Name == "" {
		return fmt.Errorf("%w: name is required", ErrBookmarkInvalid)
	}
	switch b.Type {
	case BookmarkSession:
		if b.MessageID != "" || b.FromMessageID != "" || b.ToMessageID != "" {
			return fmt.Errorf("%w: session bookmark forbids message fields", ErrBookmarkInvalid)
		}
	case BookmarkMessage:
		if b.MessageID == "" {
			return fmt.Errorf("%w: message bookmark requires messageId", ErrBookmarkInvalid)
		}
		if b.FromMessageID != "" || b.ToMessageID != "" {
			return fmt.Errorf("%w: message bookmark forbids range fields", ErrBookmarkInvalid)
		}
	case BookmarkRange:
		if b.FromMessageID == "" || b.ToMessageID == "" {
			return fmt.Errorf("%w: range bookmark requires both endpoints", ErrBookmarkInvalid)
		}
		if b.MessageID != "" {
			return fmt.Errorf("%w: range bookmark forbids messageId", ErrBookmarkInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrBookmarkInvalid, b.Type)
	}
	return nil
}
