package store

import (
	"path/filepath"
	"sync"
	"time"
)

const fileChangesFile = "file-changes-index.json"

// FileChangeStore is the single writer for file-changes-index.json.
type FileChangeStore struct {
	path string
	mu   sync.Mutex
}

// NewFileChangeStore creates a store rooted at the given config directory.
func NewFileChangeStore(configDir string) *FileChangeStore {
	return &FileChangeStore{path: filepath.Join(configDir, fileChangesFile)}
}

func (s *FileChangeStore) load() (*FileChangeIndex, error) {
	idx := &FileChangeIndex{}
	if _, err := LoadJSON(s.path, idx); err != nil {
		return nil, err
	}
	if idx.Sessions == nil {
		idx.Sessions = make(map[string][]ChangedFile)
	}
	return idx, nil
}

// Get returns the changes recorded for one session, and whether any exist.
func (s *FileChangeStore) Get(sessionID string) ([]ChangedFile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.load()
	if err != nil {
		return nil, false, err
	}
	changes, ok := idx.Sessions[sessionID]
	return changes, ok, nil
}

// Put records the changes for one session, replacing any previous entry.
func (s *FileChangeStore) Put(sessionID string, changes []ChangedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.load()
	if err != nil {
		return err
	}
	idx.Sessions[sessionID] = changes
	idx.UpdatedAt = time.Now().UTC()
	return SaveJSON(s.path, idx)
}

// Replace swaps the whole index, used by a rebuild.
func (s *FileChangeStore) Replace(sessions map[string][]ChangedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := &FileChangeIndex{Sessions: sessions, UpdatedAt: time.Now().UTC()}
	if idx.Sessions == nil {
		idx.Sessions = make(map[string][]ChangedFile)
	}
	return SaveJSON(s.path, idx)
}
