package runner

import (
	"encoding/json"
	"time"

	"github.com/codex-agent/codexd/internal/rollout"
)

// The agent's exec mode emits either native rollout records or the newer
// exec-stream schema ({type: "thread.started"|"item.completed"|
// "turn.completed", ...}). normalizeLine folds both into rollout lines so
// downstream consumers see one shape.
func normalizeLine(data []byte) (*rollout.Line, bool) {
	if line, ok := rollout.ParseLine(data); ok {
		return line, true
	}
	return normalizeExecStream(data)
}

type execStreamEvent struct {
	Type     string          `json:"type"`
	ThreadID string          `json:"thread_id,omitempty"`
	Item     json.RawMessage `json:"item,omitempty"`
	Usage    json.RawMessage `json:"usage,omitempty"`
}

type execStreamItem struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Text string `json:"text,omitempty"`
}

func normalizeExecStream(data []byte) (*rollout.Line, bool) {
	var ev execStreamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, false
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	switch ev.Type {
	case "thread.started":
		// Surfaced as an opaque event so callers can pick up the thread id.
		return &rollout.Line{
			Timestamp: now,
			Kind:      rollout.KindEventMsg,
			EventMsg: &rollout.EventMsgPayload{
				Type:  "SessionConfigured",
				Other: append(json.RawMessage(nil), data...),
			},
		}, true

	case "item.completed":
		var item execStreamItem
		if err := json.Unmarshal(ev.Item, &item); err != nil {
			return nil, false
		}
		switch item.Type {
		case "agent_message":
			return &rollout.Line{
				Timestamp: now,
				Kind:      rollout.KindEventMsg,
				EventMsg: &rollout.EventMsgPayload{
					Type:         "AgentMessage",
					AgentMessage: &rollout.AgentMessageEvent{Message: item.Text},
				},
			}, true
		case "reasoning":
			return &rollout.Line{
				Timestamp: now,
				Kind:      rollout.KindEventMsg,
				EventMsg: &rollout.EventMsgPayload{
					Type:           "AgentReasoning",
					AgentReasoning: &rollout.AgentReasoningEvent{Text: item.Text},
				},
			}, true
		default:
			return &rollout.Line{
				Timestamp: now,
				Kind:      rollout.KindEventMsg,
				EventMsg: &rollout.EventMsgPayload{
					Type:  ev.Type,
					Other: append(json.RawMessage(nil), data...),
				},
			}, true
		}

	case "turn.completed":
		return &rollout.Line{
			Timestamp: now,
			Kind:      rollout.KindEventMsg,
			EventMsg: &rollout.EventMsgPayload{
				Type:         "TurnComplete",
				TurnComplete: &rollout.TurnCompleteEvent{},
			},
		}, true
	}
	return nil, false
}

// ThreadIDFromLine extracts the thread id from a normalized thread.started
// event, or "".
func ThreadIDFromLine(line *rollout.Line) string {
	if line.EventMsg == nil || line.EventMsg.Type != "SessionConfigured" || len(line.EventMsg.Other) == 0 {
		return ""
	}
	var ev execStreamEvent
	if err := json.Unmarshal(line.EventMsg.Other, &ev); err != nil {
		return ""
	}
	return ev.ThreadID
}
