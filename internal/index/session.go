// Package index lists and resolves Codex sessions. It reads the agent's own
// sqlite state database when present and falls back to scanning rollout
// files on disk.
package index

import (
	"time"

	"github.com/codex-agent/codexd/internal/rollout"
)

// Session describes one agent session derived from its rollout header and
// filesystem metadata. Sessions are owned by the external agent; this system
// only re-reads them.
type Session struct {
	ID               string           `json:"id"`
	RolloutPath      string           `json:"rolloutPath"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
	Source           string           `json:"source"`
	Cwd              string           `json:"cwd"`
	CLIVersion       string           `json:"cliVersion"`
	ModelProvider    string           `json:"modelProvider,omitempty"`
	Title            string           `json:"title"`
	FirstUserMessage string           `json:"firstUserMessage,omitempty"`
	ArchivedAt       *time.Time       `json:"archivedAt,omitempty"`
	Git              *rollout.GitInfo `json:"git,omitempty"`
	ForkedFromID     string           `json:"forkedFromId,omitempty"`
}

// Filter narrows a session listing. Zero values match everything.
type Filter struct {
	Source    string
	Cwd       string
	GitBranch string
}

// Sort orders a session listing.
type Sort struct {
	Key  string // "created_at" or "updated_at"
	Desc bool
}

// Page bounds a session listing.
type Page struct {
	Limit  int
	Offset int
}

// ListResult is one page of sessions plus the unpaginated total.
type ListResult struct {
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total"`
}

func normalizeSource(s string) string {
	switch s {
	case "cli", "vscode", "exec":
		return s
	default:
		return "unknown"
	}
}
