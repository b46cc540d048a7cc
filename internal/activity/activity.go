// Package activity folds a rollout into a single coarse status for display.
package activity

import (
	"strings"

	"github.com/codex-agent/codexd/internal/rollout"
)

// Status is the coarse state of a session.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusRunning         Status = "running"
	StatusWaitingApproval Status = "waiting_approval"
	StatusFailed          Status = "failed"
)

// Entry is the folded activity of one session.
type Entry struct {
	SessionID string `json:"sessionId"`
	Status    Status `json:"status"`
	UpdatedAt string `json:"updatedAt"`
}

// Fold projects a rollout line stream onto an Entry. The fold starts idle;
// each line may transition the status, and updatedAt tracks the timestamp of
// the last transition.
func Fold(sessionID string, lines []*rollout.Line) Entry {
	entry := Entry{SessionID: sessionID, Status: StatusIdle}

	for _, line := range lines {
		next, ok := transition(line)
		if !ok {
			continue
		}
		entry.Status = next
		entry.UpdatedAt = line.Timestamp
	}
	return entry
}

func transition(line *rollout.Line) (Status, bool) {
	switch {
	case line.EventMsg != nil:
		ev := line.EventMsg
		switch {
		case ev.TurnStarted != nil, ev.ExecCommandBegin != nil:
			return StatusRunning, true
		case ev.TurnComplete != nil, ev.ExecCommandEnd != nil:
			return StatusIdle, true
		case ev.TurnAborted != nil, ev.Error != nil:
			return StatusFailed, true
		}

	case line.ResponseItem != nil && line.ResponseItem.LocalShellCall != nil:
		status := strings.ToLower(line.ResponseItem.LocalShellCall.Status)
		switch {
		case strings.Contains(status, "approval"), strings.Contains(status, "consent"):
			return StatusWaitingApproval, true
		case status == "in_progress", status == "running":
			return StatusRunning, true
		}
	}
	return "", false
}
