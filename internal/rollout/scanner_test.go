package rollout

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeRollout(t *testing.T, dir, name, id string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	header := fmt.Sprintf(`{"timestamp":"2026-08-26T10:00:00Z","type":"session_meta","payload":{"meta":{"id":%q,"timestamp":"2026-08-26T10:00:00Z","cwd":"/work","source":"cli","cli_version":"1.0.0"}}}`, id)
	if err := os.WriteFile(path, []byte(header+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDiscoverPathsNewestFirstThenArchived(t *testing.T) {
	home := t.TempDir()

	old := writeRollout(t, filepath.Join(home, "sessions", "2026", "08", "25"),
		"rollout-2026-08-25T09-00-00-11111111-1111-7111-8111-111111111111.jsonl", "a")
	early := writeRollout(t, filepath.Join(home, "sessions", "2026", "08", "26"),
		"rollout-2026-08-26T08-00-00-22222222-2222-7222-8222-222222222222.jsonl", "b")
	late := writeRollout(t, filepath.Join(home, "sessions", "2026", "08", "26"),
		"rollout-2026-08-26T12-00-00-33333333-3333-7333-8333-333333333333.jsonl", "c")
	archived := writeRollout(t, filepath.Join(home, "archived_sessions"),
		"rollout-2026-01-01T00-00-00-44444444-4444-7444-8444-444444444444.jsonl", "d")

	// A non-rollout file must be ignored.
	if err := os.WriteFile(filepath.Join(home, "sessions", "2026", "08", "26", "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := DiscoverPaths(home)
	want := []string{late, early, old, archived}
	if len(got) != len(want) {
		t.Fatalf("got %d paths, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("paths[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	if !IsArchivedPath(home, archived) {
		t.Fatal("archived path not detected")
	}
	if IsArchivedPath(home, late) {
		t.Fatal("live path reported archived")
	}
}

func TestDiscoverPathsMissingHome(t *testing.T) {
	if got := DiscoverPaths(filepath.Join(t.TempDir(), "nope")); len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestSessionIDFromPath(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"rollout-2026-08-26T10-00-00-0191b2c3-d4e5-7f60-8192-a3b4c5d6e7f8.jsonl", "0191b2c3-d4e5-7f60-8192-a3b4c5d6e7f8"},
		{"rollout-short.jsonl", ""},
		{"other-2026-08-26T10-00-00-0191b2c3-d4e5-7f60-8192-a3b4c5d6e7f8.jsonl", ""},
		{"rollout-2026-08-26T10-00-00-0191b2c3-d4e5-7f60-8192-a3b4c5d6e7f8.txt", ""},
	}
	for _, tt := range tests {
		if got := SessionIDFromPath("/x/" + tt.name); got != tt.want {
			t.Errorf("SessionIDFromPath(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestReadHeaderAndReadAll(t *testing.T) {
	home := t.TempDir()
	path := writeRollout(t, home, "rollout-2026-08-26T10-00-00-55555555-5555-7555-8555-555555555555.jsonl", "sess-1")

	extra := `{"timestamp":"2026-08-26T10:00:01Z","type":"event_msg","payload":{"type":"AgentMessage","message":"hi"}}
garbage line
{"timestamp":"2026-08-26T10:00:02Z","type":"turn_context","payload":{"model":"o3","cwd":"/work"}}
`
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(extra); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	header, ok := ReadHeader(path)
	if !ok || header.Meta.ID != "sess-1" {
		t.Fatalf("header = %+v, ok = %v", header, ok)
	}

	lines, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	// The garbage line is skipped.
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	if lines[2].TurnContext == nil || lines[2].TurnContext.Model != "o3" {
		t.Fatalf("turn context = %+v", lines[2].TurnContext)
	}

	if _, ok := ReadHeader(filepath.Join(home, "missing.jsonl")); ok {
		t.Fatal("header from missing file")
	}
}
