package store

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrQueueNotFound is returned when no queue matches the given id or name.
	ErrQueueNotFound = errors.New("queue not found")
	// ErrPromptNotFound is returned when a queue has no prompt with the id.
	ErrPromptNotFound = errors.New("prompt not found")
)

const queuesFile = "queues.json"

type queuesDoc struct {
	Queues []Queue `json:"queues"`
}

// QueueStore is the single writer for queues.json.
type QueueStore struct {
	path string
	mu   sync.Mutex
}

// NewQueueStore creates a store rooted at the given config directory.
func NewQueueStore(configDir string) *QueueStore {
	return &QueueStore{path: filepath.Join(configDir, queuesFile)}
}

func (s *QueueStore) load() (*queuesDoc, error) {
	doc := &queuesDoc{}
	if _, err := LoadJSON(s.path, doc); err != nil {
		return nil, err
	}
	if doc.Queues == nil {
		doc.Queues = []Queue{}
	}
	return doc, nil
}

// List returns all queues in stored order.
func (s *QueueStore) List() ([]Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Queues, nil
}

// Get resolves a queue by id, or by name as an alias.
func (s *QueueStore) Get(idOrName string) (*Queue, error) {
	queues, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := range queues {
		if queues[i].ID == idOrName {
			return &queues[i], nil
		}
	}
	for i := range queues {
		if queues[i].Name == idOrName {
			return &queues[i], nil
		}
	}
	return nil, ErrQueueNotFound
}

// Add creates an empty queue for a project directory.
func (s *QueueStore) Add(name, projectPath string) (*Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	q := Queue{
		ID:          uuid.NewString(),
		Name:        name,
		ProjectPath: projectPath,
		Prompts:     []QueuePrompt{},
		CreatedAt:   time.Now().UTC(),
	}
	doc.Queues = append(doc.Queues, q)
	if err := SaveJSON(s.path, doc); err != nil {
		return nil, err
	}
	return &q, nil
}

// Update applies fn to the matching queue and persists the result.
func (s *QueueStore) Update(id string, fn func(*Queue)) (*Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.Queues {
		if doc.Queues[i].ID != id {
			continue
		}
		fn(&doc.Queues[i])
		if err := SaveJSON(s.path, doc); err != nil {
			return nil, err
		}
		q := doc.Queues[i]
		return &q, nil
	}
	return nil, ErrQueueNotFound
}

// Delete removes a queue entirely.
func (s *QueueStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	for i := range doc.Queues {
		if doc.Queues[i].ID == id {
			doc.Queues = append(doc.Queues[:i], doc.Queues[i+1:]...)
			return SaveJSON(s.path, doc)
		}
	}
	return ErrQueueNotFound
}

// SetPaused flips the pause flag. The queue runner reloads this live.
func (s *QueueStore) SetPaused(id string, paused bool) (*Queue, error) {
	return s.Update(id, func(q *Queue) { q.Paused = paused })
}

// AddPrompt appends a pending prompt to the queue.
func (s *QueueStore) AddPrompt(queueID, text string, mode PromptMode, images []string) (*Queue, error) {
	if mode == "" {
		mode = ModeAuto
	}
	return s.Update(queueID, func(q *Queue) {
		q.Prompts = append(q.Prompts, QueuePrompt{
			ID:      uuid.NewString(),
			Prompt:  text,
			Status:  PromptPending,
			Mode:    mode,
			AddedAt: time.Now().UTC(),
			Images:  images,
		})
	})
}

// UpdatePrompt applies fn to one prompt. Editing a running prompt does not
// interrupt its run; the change applies to the next observation.
func (s *QueueStore) UpdatePrompt(queueID, promptID string, fn func(*QueuePrompt)) (*Queue, error) {
	var found bool
	q, err := s.Update(queueID, func(q *Queue) {
		for i := range q.Prompts {
			if q.Prompts[i].ID == promptID {
				fn(&q.Prompts[i])
				found = true
				return
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrPromptNotFound
	}
	return q, nil
}

// RemovePrompt deletes one prompt from the queue.
func (s *QueueStore) RemovePrompt(queueID, promptID string) (*Queue, error) {
	var found bool
	q, err := s.Update(queueID, func(q *Queue) {
		for i := range q.Prompts {
			if q.Prompts[i].ID == promptID {
				q.Prompts = append(q.Prompts[:i], q.Prompts[i+1:]...)
				found = true
				return
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrPromptNotFound
	}
	return q, nil
}

// MovePrompt repositions a prompt within the queue. Moves between pending
// slots do not touch timestamps.
func (s *QueueStore) MovePrompt(queueID, promptID string, toIndex int) (*Queue, error) {
	var found bool
	q, err := s.Update(queueID, func(q *Queue) {
		from := -1
		for i := range q.Prompts {
			if q.Prompts[i].ID == promptID {
				from = i
				break
			}
		}
		if from < 0 {
			return
		}
		found = true
		p := q.Prompts[from]
		q.Prompts = append(q.Prompts[:from], q.Prompts[from+1:]...)
		if toIndex < 0 {
			toIndex = 0
		}
		if toIndex > len(q.Prompts) {
			toIndex = len(q.Prompts)
		}
		q.Prompts = append(q.Prompts[:toIndex], append([]QueuePrompt{p}, q.Prompts[toIndex:]...)...)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrPromptNotFound
	}
	return q, nil
}

// MarkPromptRunning transitions pending → running and stamps startedAt.
func (s *QueueStore) MarkPromptRunning(queueID, promptID string) (*Queue, error) {
	now := time.Now().UTC()
	return s.UpdatePrompt(queueID, promptID, func(p *QueuePrompt) {
		p.Status = PromptRunning
		p.StartedAt = &now
	})
}

// MarkPromptDone transitions running → completed or failed based on the
// exit code and stamps completedAt.
func (s *QueueStore) MarkPromptDone(queueID, promptID string, exitCode int) (*Queue, error) {
	now := time.Now().UTC()
	return s.UpdatePrompt(queueID, promptID, func(p *QueuePrompt) {
		if exitCode == 0 {
			p.Status = PromptCompleted
		} else {
			p.Status = PromptFailed
		}
		p.Result = &PromptResult{ExitCode: exitCode}
		p.CompletedAt = &now
	})
}
