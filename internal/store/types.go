package store

import "time"

// Group is a named, ordered collection of session ids used for prompt
// fan-out.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Paused      bool      `json:"paused"`
	SessionIDs  []string  `json:"sessionIds"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PromptStatus is the lifecycle of a queued prompt. Transitions only move
// forward: pending, running, then completed or failed.
type PromptStatus string

const (
	PromptPending   PromptStatus = "pending"
	PromptRunning   PromptStatus = "running"
	PromptCompleted PromptStatus = "completed"
	PromptFailed    PromptStatus = "failed"
)

// PromptMode controls whether the automatic drain picks a prompt up.
type PromptMode string

const (
	ModeAuto   PromptMode = "auto"
	ModeManual PromptMode = "manual"
)

// PromptResult records how a drained prompt's run ended.
type PromptResult struct {
	ExitCode int `json:"exitCode"`
}

// QueuePrompt is one entry in a prompt queue.
type QueuePrompt struct {
	ID          string        `json:"id"`
	Prompt      string        `json:"prompt"`
	Status      PromptStatus  `json:"status"`
	Mode        PromptMode    `json:"mode"`
	Result      *PromptResult `json:"result,omitempty"`
	AddedAt     time.Time     `json:"addedAt"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
	Images      []string      `json:"images,omitempty"`
}

// Queue is a FIFO of prompts drained sequentially against one project
// directory.
type Queue struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	ProjectPath string        `json:"projectPath"`
	Prompts     []QueuePrompt `json:"prompts"`
	Paused      bool          `json:"paused"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// BookmarkType distinguishes what a bookmark points at.
type BookmarkType string

const (
	BookmarkSession BookmarkType = "session"
	BookmarkMessage BookmarkType = "message"
	BookmarkRange   BookmarkType = "range"
)

// Bookmark marks a session, one message, or a message range.
type Bookmark struct {
	ID            string       `json:"id"`
	Type          BookmarkType `json:"type"`
	SessionID     string       `json:"sessionId"`
	MessageID     string       `json:"messageId,omitempty"`
	FromMessageID string       `json:"fromMessageId,omitempty"`
	ToMessageID   string       `json:"toMessageId,omitempty"`
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	Tags          []string     `json:"tags,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// ChangedFile is one aggregated file-change entry for a session.
type ChangedFile struct {
	Path         string `json:"path"`
	Operation    string `json:"operation"`
	ChangeCount  int    `json:"changeCount"`
	LastModified string `json:"lastModified"`
}

// FileChangeIndex maps session ids to their aggregated file changes.
type FileChangeIndex struct {
	Sessions  map[string][]ChangedFile `json:"sessions"`
	UpdatedAt time.Time                `json:"updatedAt"`
}
