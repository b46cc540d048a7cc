// Package rollout parses the append-only JSONL rollout files written by the
// Codex CLI and discovers them under the Codex home directory.
package rollout

import (
	"bytes"
	"encoding/json"
)

// Kind discriminates the top-level rollout line envelope.
type Kind string

const (
	KindSessionMeta  Kind = "session_meta"
	KindResponseItem Kind = "response_item"
	KindEventMsg     Kind = "event_msg"
	KindCompacted    Kind = "compacted"
	KindTurnContext  Kind = "turn_context"
)

// Line is one parsed rollout record. Exactly one of the payload fields
// matching Kind is set; the rest are nil. Raw preserves the original line
// bytes for consumers that forward records verbatim.
type Line struct {
	Timestamp string
	Kind      Kind
	Raw       json.RawMessage

	SessionMeta  *SessionMetaPayload
	ResponseItem *ResponseItemPayload
	EventMsg     *EventMsgPayload
	TurnContext  *TurnContextPayload
	Compacted    json.RawMessage
}

// SessionMetaPayload is the first line of every rollout file.
type SessionMetaPayload struct {
	Meta SessionMeta `json:"meta"`
	Git  *GitInfo    `json:"git,omitempty"`
}

// SessionMeta identifies the session the rollout belongs to.
type SessionMeta struct {
	ID            string `json:"id"`
	Timestamp     string `json:"timestamp"`
	Cwd           string `json:"cwd"`
	Originator    string `json:"originator"`
	CLIVersion    string `json:"cli_version"`
	Source        string `json:"source"`
	ModelProvider string `json:"model_provider,omitempty"`
	ForkedFromID  string `json:"forked_from_id,omitempty"`
}

// GitInfo is the repository state captured at session start.
type GitInfo struct {
	SHA       string `json:"sha,omitempty"`
	Branch    string `json:"branch,omitempty"`
	OriginURL string `json:"origin_url,omitempty"`
}

// ResponseItemPayload is tagged by its inner "type". Known subtypes are
// decoded; everything else is preserved opaquely in Other.
type ResponseItemPayload struct {
	Type           string
	Message        *MessageItem
	Reasoning      *ReasoningItem
	LocalShellCall *LocalShellCall
	Other          json.RawMessage
}

// MessageItem carries a role-tagged content list.
type MessageItem struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one element of a message content array.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ReasoningItem carries reasoning summary texts.
type ReasoningItem struct {
	Summary []SummaryText `json:"summary"`
}

// SummaryText is one reasoning summary entry.
type SummaryText struct {
	Text string `json:"text"`
}

// LocalShellCall is a shell invocation recorded as a response item.
type LocalShellCall struct {
	Status string      `json:"status"`
	Action ShellAction `json:"action"`
}

// ShellAction holds the argv of a shell call.
type ShellAction struct {
	Command []string `json:"command"`
}

// EventMsgPayload is tagged by its inner "type". Known subtypes are decoded;
// unrecognized event types pass through in Other.
type EventMsgPayload struct {
	Type             string
	UserMessage      *UserMessageEvent
	AgentMessage     *AgentMessageEvent
	AgentReasoning   *AgentReasoningEvent
	TurnStarted      *TurnStartedEvent
	TurnComplete     *TurnCompleteEvent
	TurnAborted      *TurnAbortedEvent
	TokenCount       *TokenCountEvent
	ExecCommandBegin *ExecCommandBeginEvent
	ExecCommandEnd   *ExecCommandEndEvent
	Error            *ErrorEvent
	Other            json.RawMessage
}

type UserMessageEvent struct {
	Message string   `json:"message"`
	Images  []string `json:"images,omitempty"`
}

type AgentMessageEvent struct {
	Message string `json:"message"`
}

type AgentReasoningEvent struct {
	Text string `json:"text"`
}

type TurnStartedEvent struct {
	TurnID string `json:"turn_id"`
}

type TurnCompleteEvent struct {
	TurnID           string `json:"turn_id"`
	LastAgentMessage string `json:"last_agent_message,omitempty"`
}

type TurnAbortedEvent struct {
	TurnID string `json:"turn_id"`
	Reason string `json:"reason,omitempty"`
}

type TokenCountEvent struct {
	TotalTokens int64 `json:"total_tokens,omitempty"`
}

type ExecCommandBeginEvent struct {
	CallID  string   `json:"call_id"`
	TurnID  string   `json:"turn_id"`
	Command []string `json:"command"`
	Cwd     string   `json:"cwd"`
}

type ExecCommandEndEvent struct {
	CallID   string `json:"call_id"`
	TurnID   string `json:"turn_id"`
	ExitCode int    `json:"exit_code"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

// TurnContextPayload records per-turn execution settings.
type TurnContextPayload struct {
	Model         string `json:"model,omitempty"`
	Cwd           string `json:"cwd,omitempty"`
	SandboxPolicy string `json:"sandbox_policy,omitempty"`
	ApprovalMode  string `json:"approval_mode,omitempty"`
}

type envelope struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

type taggedPayload struct {
	Type string `json:"type"`
}

// ParseLine decodes one rollout JSONL record. The second return is false for
// malformed JSON or an unrecognized envelope type; callers skip those lines.
func ParseLine(data []byte) (*Line, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false
	}

	line := &Line{
		Timestamp: env.Timestamp,
		Kind:      Kind(env.Type),
		Raw:       append(json.RawMessage(nil), data...),
	}

	switch line.Kind {
	case KindSessionMeta:
		var p SessionMetaPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, false
		}
		line.SessionMeta = &p

	case KindResponseItem:
		p, ok := parseResponseItem(env.Payload)
		if !ok {
			return nil, false
		}
		line.ResponseItem = p

	case KindEventMsg:
		p, ok := parseEventMsg(env.Payload)
		if !ok {
			return nil, false
		}
		line.EventMsg = p

	case KindTurnContext:
		var p TurnContextPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, false
		}
		line.TurnContext = &p

	case KindCompacted:
		line.Compacted = append(json.RawMessage(nil), env.Payload...)

	default:
		return nil, false
	}

	return line, true
}

func parseResponseItem(raw json.RawMessage) (*ResponseItemPayload, bool) {
	var tag taggedPayload
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, false
	}

	p := &ResponseItemPayload{Type: tag.Type}
	switch tag.Type {
	case "message":
		var item MessageItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, false
		}
		p.Message = &item
	case "reasoning":
		var item ReasoningItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, false
		}
		p.Reasoning = &item
	case "local_shell_call":
		var item LocalShellCall
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, false
		}
		p.LocalShellCall = &item
	default:
		p.Other = append(json.RawMessage(nil), raw...)
	}
	return p, true
}

func parseEventMsg(raw json.RawMessage) (*EventMsgPayload, bool) {
	var tag taggedPayload
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, false
	}

	p := &EventMsgPayload{Type: tag.Type}
	var err error
	switch tag.Type {
	case "UserMessage":
		v := &UserMessageEvent{}
		err = json.Unmarshal(raw, v)
		p.UserMessage = v
	case "AgentMessage":
		v := &AgentMessageEvent{}
		err = json.Unmarshal(raw, v)
		p.AgentMessage = v
	case "AgentReasoning":
		v := &AgentReasoningEvent{}
		err = json.Unmarshal(raw, v)
		p.AgentReasoning = v
	case "TurnStarted":
		v := &TurnStartedEvent{}
		err = json.Unmarshal(raw, v)
		p.TurnStarted = v
	case "TurnComplete":
		v := &TurnCompleteEvent{}
		err = json.Unmarshal(raw, v)
		p.TurnComplete = v
	case "TurnAborted":
		v := &TurnAbortedEvent{}
		err = json.Unmarshal(raw, v)
		p.TurnAborted = v
	case "TokenCount":
		v := &TokenCountEvent{}
		err = json.Unmarshal(raw, v)
		p.TokenCount = v
	case "ExecCommandBegin":
		v := &ExecCommandBeginEvent{}
		err = json.Unmarshal(raw, v)
		p.ExecCommandBegin = v
	case "ExecCommandEnd":
		v := &ExecCommandEndEvent{}
		err = json.Unmarshal(raw, v)
		p.ExecCommandEnd = v
	case "Error":
		v := &ErrorEvent{}
		err = json.Unmarshal(raw, v)
		p.Error = v
	default:
		p.Other = append(json.RawMessage(nil), raw...)
	}
	if err != nil {
		return nil, false
	}
	return p, true
}
