package activity

import (
	"testing"

	"github.com/codex-agent/codexd/internal/rollout"
)

func eventLine(ts string, p rollout.EventMsgPayload) *rollout.Line {
	return &rollout.Line{Timestamp: ts, Kind: rollout.KindEventMsg, EventMsg: &p}
}

func shellLine(ts, status string) *rollout.Line {
	return &rollout.Line{
		Timestamp: ts,
		Kind:      rollout.KindResponseItem,
		ResponseItem: &rollout.ResponseItemPayload{
			Type:           "local_shell_call",
			LocalShellCall: &rollout.LocalShellCall{Status: status},
		},
	}
}

func TestFoldTurnCycle(t *testing.T) {
	lines := []*rollout.Line{
		eventLine("2026-01-01T00:00:00Z", rollout.EventMsgPayload{
			Type: "TurnStarted", TurnStarted: &rollout.TurnStartedEvent{TurnID: "t1"},
		}),
		eventLine("2026-01-01T00:00:05Z", rollout.EventMsgPayload{
			Type: "TurnComplete", TurnComplete: &rollout.TurnCompleteEvent{TurnID: "t1"},
		}),
	}
	entry := Fold("s1", lines)
	if entry.Status != StatusIdle {
		t.Fatalf("status = %s, want idle", entry.Status)
	}
	if entry.UpdatedAt != "2026-01-01T00:00:05Z" {
		t.Fatalf("updatedAt = %s", entry.UpdatedAt)
	}
}

func TestFoldApproval(t *testing.T) {
	entry := Fold("s1", []*rollout.Line{shellLine("t1", "needs_approval")})
	if entry.Status != StatusWaitingApproval {
		t.Fatalf("status = %s, want waiting_approval", entry.Status)
	}
}

func TestFoldShellInProgress(t *testing.T) {
	entry := Fold("s1", []*rollout.Line{shellLine("t1", "in_progress")})
	if entry.Status != StatusRunning {
		t.Fatalf("status = %s, want running", entry.Status)
	}
}

func TestFoldFailure(t *testing.T) {
	lines := []*rollout.Line{
		eventLine("t1", rollout.EventMsgPayload{
			Type: "TurnStarted", TurnStarted: &rollout.TurnStartedEvent{TurnID: "t1"},
		}),
		eventLine("t2", rollout.EventMsgPayload{
			Type: "TurnAborted", TurnAborted: &rollout.TurnAbortedEvent{TurnID: "t1"},
		}),
	}
	entry := Fold("s1", lines)
	if entry.Status != StatusFailed || entry.UpdatedAt != "t2" {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestFoldIgnoresNonTransitions(t *testing.T) {
	lines := []*rollout.Line{
		eventLine("t1", rollout.EventMsgPayload{
			Type: "AgentMessage", AgentMessage: &rollout.AgentMessageEvent{Message: "hi"},
		}),
		shellLine("t2", "completed"),
	}
	entry := Fold("s1", lines)
	if entry.Status != StatusIdle || entry.UpdatedAt != "" {
		t.Fatalf("entry = %+v", entry)
	}
}
