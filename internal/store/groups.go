package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrGroupNotFound is returned when no group matches the given id or name.
var ErrGroupNotFound = errors.New("group not found")

const groupsFile = "groups.json"

type groupsDoc struct {
	Groups []Group `json:"groups"`
}

// GroupStore is the single writer for groups.json. Mutations are serialized
// by a per-document mutex and applied read-modify-write.
type GroupStore struct {
	path string
	mu   sync.Mutex
}

// NewGroupStore creates a store rooted at the given config directory.
func NewGroupStore(configDir string) *GroupStore {
	return &GroupStore{path: filepath.Join(configDir, groupsFile)}
}

func (s *GroupStore) load() (*groupsDoc, error) {
	doc := &groupsDoc{}
	if _, err := LoadJSON(s.path, doc); err != nil {
		return nil, err
	}
	if doc.Groups == nil {
		doc.Groups = []Group{}
	}
	return doc, nil
}

// List returns all groups in stored order.
func (s *GroupStore) List() ([]Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Groups, nil
}

// Get resolves a group by id, or by name as an alias.
func (s *GroupStore) Get(idOrName string) (*Group, error) {
	groups, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := range groups {
		if groups[i].ID == idOrName {
			return &groups[i], nil
		}
	}
	for i := range groups {
		if groups[i].Name == idOrName {
			return &groups[i], nil
		}
	}
	return nil, ErrGroupNotFound
}

// Add creates a group. Duplicate session ids are dropped while preserving
// first-occurrence order.
func (s *GroupStore) Add(name, description string, sessionIDs []string) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	g := Group{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		SessionIDs:  dedupe(sessionIDs),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	doc.Groups = append(doc.Groups, g)
	if err := SaveJSON(s.path, doc); err != nil {
		return nil, err
	}
	return &g, nil
}

// Update applies fn to the matching group and persists the result.
func (s *GroupStore) Update(id string, fn func(*Group)) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.Groups {
		if doc.Groups[i].ID != id {
			continue
		}
		fn(&doc.Groups[i])
		doc.Groups[i].SessionIDs = dedupe(doc.Groups[i].SessionIDs)
		doc.Groups[i].UpdatedAt = time.Now().UTC()
		if err := SaveJSON(s.path, doc); err != nil {
			return nil, err
		}
		g := doc.Groups[i]
		return &g, nil
	}
	return nil, ErrGroupNotFound
}

// SetPaused flips the pause flag.
func (s *GroupStore) SetPaused(id string, paused bool) (*Group, error) {
	return s.Update(id, func(g *Group) { g.Paused = paused })
}

// AddSessions appends session ids, skipping ones already present.
func (s *GroupStore) AddSessions(id string, sessionIDs []string) (*Group, error) {
	return s.Update(id, func(g *Group) {
		g.SessionIDs = append(g.SessionIDs, sessionIDs...)
	})
}

// RemoveSession drops one session id from the group.
func (s *GroupStore) RemoveSession(id, sessionID string) (*Group, error) {
	return s.Update(id, func(g *Group) {
		kept := g.SessionIDs[:0]
		for _, sid := range g.SessionIDs {
			if sid != sessionID {
				kept = append(kept, sid)
			}
		}
		g.SessionIDs = kept
	})
}

// Delete removes a group entirely.
func (s *GroupStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	for i := range doc.Groups {
		if doc.Groups[i].ID == id {
			doc.Groups = append(doc.Groups[:i], doc.Groups[i+1:]...)
			return SaveJSON(s.path, doc)
		}
	}
	return fmt.Errorf("%w: %s", ErrGroupNotFound, id)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
