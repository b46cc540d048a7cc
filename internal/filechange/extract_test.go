package filechange

import (
	"testing"

	"github.com/codex-agent/codexd/internal/rollout"
)

func execLine(ts string, argv ...string) *rollout.Line {
	return &rollout.Line{
		Timestamp: ts,
		Kind:      rollout.KindEventMsg,
		EventMsg: &rollout.EventMsgPayload{
			Type:             "ExecCommandBegin",
			ExecCommandBegin: &rollout.ExecCommandBeginEvent{Command: argv},
		},
	}
}

func shellCallLine(ts string, argv ...string) *rollout.Line {
	return &rollout.Line{
		Timestamp: ts,
		Kind:      rollout.KindResponseItem,
		ResponseItem: &rollout.ResponseItemPayload{
			Type: "local_shell_call",
			LocalShellCall: &rollout.LocalShellCall{
				Status: "completed",
				Action: rollout.ShellAction{Command: argv},
			},
		},
	}
}

func TestExtractClassifiesByPrefix(t *testing.T) {
	lines := []*rollout.Line{
		execLine("t1", "touch", "new.txt"),
		execLine("t2", "sed", "-i", "s/a/b/", "config.yaml"),
		execLine("t3", "rm", "junk.log"),
		execLine("t4", "make", "build.out"),
	}
	changes := Extract(lines)
	want := map[string]Operation{
		"new.txt":     OpCreated,
		"config.yaml": OpModified,
		"junk.log":    OpDeleted,
		"build.out":   OpModified, // unknown command defaults to modified
	}
	if len(changes) != len(want) {
		t.Fatalf("got %d changes, want %d: %+v", len(changes), len(want), changes)
	}
	for _, ch := range changes {
		if want[ch.Path] != ch.Operation {
			t.Errorf("%s: op = %s, want %s", ch.Path, ch.Operation, want[ch.Path])
		}
	}
}

func TestExtractRejectsNonPathTokens(t *testing.T) {
	lines := []*rollout.Line{
		execLine("t1", "rm", "-rf", "*.tmp", `"quoted.txt"`, "no_extension", "ok.go"),
	}
	changes := Extract(lines)
	if len(changes) != 1 || changes[0].Path != "ok.go" {
		t.Fatalf("got %+v, want only ok.go", changes)
	}
	if changes[0].Operation != OpDeleted {
		t.Fatalf("op = %s, want deleted", changes[0].Operation)
	}
}

func TestExtractCreatedThenDeletedSticks(t *testing.T) {
	lines := []*rollout.Line{
		execLine("t1", "touch", "scratch.py"),
		execLine("t2", "rm", "scratch.py"),
		execLine("t3", "git", "add", "scratch.py"),
	}
	changes := Extract(lines)
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(changes))
	}
	ch := changes[0]
	if ch.Operation != OpDeleted {
		t.Errorf("op = %s, want deleted", ch.Operation)
	}
	if ch.ChangeCount != 3 {
		t.Errorf("changeCount = %d, want 3", ch.ChangeCount)
	}
	if ch.LastModified != "t3" {
		t.Errorf("lastModified = %q, want t3", ch.LastModified)
	}
}

func TestExtractDeletedSticksAcrossLaterOps(t *testing.T) {
	lines := []*rollout.Line{
		execLine("t1", "touch", "scratch.py"),
		execLine("t2", "sed", "-i", "s/a/b/", "scratch.py"),
		execLine("t3", "rm", "scratch.py"),
		execLine("t4", "cp", "backup.py", "scratch.py"),
	}
	changes := Extract(lines)
	var got *Change
	for i := range changes {
		if changes[i].Path == "scratch.py" {
			got = &changes[i]
		}
	}
	if got == nil {
		t.Fatalf("scratch.py missing from %+v", changes)
	}
	if got.Operation != OpDeleted {
		t.Errorf("op = %s, want deleted", got.Operation)
	}
	if got.ChangeCount != 4 {
		t.Errorf("changeCount = %d, want 4", got.ChangeCount)
	}
	if got.LastModified != "t4" {
		t.Errorf("lastModified = %q, want t4", got.LastModified)
	}
}

func TestExtractLatestOperationWins(t *testing.T) {
	lines := []*rollout.Line{
		execLine("t1", "rm", "notes.md"),
		execLine("t2", "touch", "notes.md"),
	}
	changes := Extract(lines)
	if len(changes) != 1 || changes[0].Operation != OpCreated {
		t.Fatalf("got %+v, want created", changes)
	}
}

func TestExtractReadsShellCalls(t *testing.T) {
	lines := []*rollout.Line{
		shellCallLine("t1", "git", "mv", "old.go", "renamed.go"),
	}
	changes := Extract(lines)
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2", len(changes))
	}
	for _, ch := range changes {
		if ch.Operation != OpModified {
			t.Errorf("%s: op = %s, want modified", ch.Path, ch.Operation)
		}
	}
}

func TestExtractNestedPaths(t *testing.T) {
	lines := []*rollout.Line{
		execLine("t1", "tee", "internal/api/server.go"),
	}
	changes := Extract(lines)
	if len(changes) != 1 || changes[0].Path != "internal/api/server.go" {
		t.Fatalf("got %+v", changes)
	}
}
