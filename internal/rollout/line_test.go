package rollout

import (
	"testing"
)

func TestParseLineSessionMeta(t *testing.T) {
	data := `{"timestamp":"2026-08-26T10:00:00Z","type":"session_meta","payload":{"meta":{"id":"abc","timestamp":"2026-08-26T10:00:00Z","cwd":"/work","originator":"cli","cli_version":"1.2.3","source":"cli"},"git":{"sha":"deadbeef","branch":"main"}}}`

	line, ok := ParseLine([]byte(data))
	if !ok {
		t.Fatal("parse failed")
	}
	if line.Kind != KindSessionMeta {
		t.Fatalf("kind = %q", line.Kind)
	}
	if line.SessionMeta.Meta.ID != "abc" || line.SessionMeta.Meta.Cwd != "/work" {
		t.Fatalf("meta = %+v", line.SessionMeta.Meta)
	}
	if line.SessionMeta.Git == nil || line.SessionMeta.Git.Branch != "main" {
		t.Fatalf("git = %+v", line.SessionMeta.Git)
	}
	if string(line.Raw) != data {
		t.Fatal("raw bytes not preserved")
	}
}

func TestParseLineEventMsgVariants(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		check func(t *testing.T, p *EventMsgPayload)
	}{
		{
			name: "user message",
			data: `{"timestamp":"t","type":"event_msg","payload":{"type":"UserMessage","message":"hi","images":["/tmp/a.png"]}}`,
			check: func(t *testing.T, p *EventMsgPayload) {
				if p.UserMessage == nil || p.UserMessage.Message != "hi" || len(p.UserMessage.Images) != 1 {
					t.Fatalf("payload = %+v", p.UserMessage)
				}
			},
		},
		{
			name: "agent message",
			data: `{"timestamp":"t","type":"event_msg","payload":{"type":"AgentMessage","message":"done"}}`,
			check: func(t *testing.T, p *EventMsgPayload) {
				if p.AgentMessage == nil || p.AgentMessage.Message != "done" {
					t.Fatalf("payload = %+v", p.AgentMessage)
				}
			},
		},
		{
			name: "exec begin",
			data: `{"timestamp":"t","type":"event_msg","payload":{"type":"ExecCommandBegin","call_id":"c1","turn_id":"t1","command":["touch","a.txt"],"cwd":"/work"}}`,
			check: func(t *testing.T, p *EventMsgPayload) {
				if p.ExecCommandBegin == nil || len(p.ExecCommandBegin.Command) != 2 {
					t.Fatalf("payload = %+v", p.ExecCommandBegin)
				}
			},
		},
		{
			name: "turn complete",
			data: `{"timestamp":"t","type":"event_msg","payload":{"type":"TurnComplete","turn_id":"t1","last_agent_message":"bye"}}`,
			check: func(t *testing.T, p *EventMsgPayload) {
				if p.TurnComplete == nil || p.TurnComplete.LastAgentMessage != "bye" {
					t.Fatalf("payload = %+v", p.TurnComplete)
				}
			},
		},
		{
			name: "unknown event preserved",
			data: `{"timestamp":"t","type":"event_msg","payload":{"type":"SomethingNew","detail":42}}`,
			check: func(t *testing.T, p *EventMsgPayload) {
				if p.Type != "SomethingNew" || len(p.Other) == 0 {
					t.Fatalf("payload = %+v", p)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, ok := ParseLine([]byte(tt.data))
			if !ok {
				t.Fatal("parse failed")
			}
			if line.Kind != KindEventMsg || line.EventMsg == nil {
				t.Fatalf("line = %+v", line)
			}
			tt.check(t, line.EventMsg)
		})
	}
}

func TestParseLineResponseItem(t *testing.T) {
	data := `{"timestamp":"t","type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"fix it"}]}}`
	line, ok := ParseLine([]byte(data))
	if !ok {
		t.Fatal("parse failed")
	}
	m := line.ResponseItem.Message
	if m == nil || m.Role != "user" || m.Content[0].Text != "fix it" {
		t.Fatalf("message = %+v", m)
	}

	data = `{"timestamp":"t","type":"response_item","payload":{"type":"local_shell_call","status":"completed","action":{"command":["rm","old.txt"]}}}`
	line, ok = ParseLine([]byte(data))
	if !ok {
		t.Fatal("parse failed")
	}
	sc := line.ResponseItem.LocalShellCall
	if sc == nil || sc.Status != "completed" || len(sc.Action.Command) != 2 {
		t.Fatalf("shell call = %+v", sc)
	}

	data = `{"timestamp":"t","type":"response_item","payload":{"type":"function_call","name":"foo"}}`
	line, ok = ParseLine([]byte(data))
	if !ok {
		t.Fatal("parse failed")
	}
	if line.ResponseItem.Type != "function_call" || len(line.ResponseItem.Other) == 0 {
		t.Fatalf("item = %+v", line.ResponseItem)
	}
}

func TestParseLineRejectsMalformed(t *testing.T) {
	for _, data := range []string{
		"",
		"   ",
		"not json",
		`{"timestamp":"t","type":"bogus_kind","payload":{}}`,
		`{"timestamp":"t","type":"session_meta","payload":"not an object"}`,
	} {
		if _, ok := ParseLine([]byte(data)); ok {
			t.Fatalf("accepted %q", data)
		}
	}
}
