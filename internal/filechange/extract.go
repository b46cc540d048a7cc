// Package filechange derives per-file change summaries from the shell
// commands recorded in a rollout.
package filechange

import (
	"regexp"
	"strings"

	"github.com/codex-agent/codexd/internal/rollout"
)

// Operation classifies what a command did to a file.
type Operation string

const (
	OpCreated  Operation = "created"
	OpModified Operation = "modified"
	OpDeleted  Operation = "deleted"
)

// Change aggregates what happened to one path over a session.
type Change struct {
	Path         string    `json:"path"`
	Operation    Operation `json:"operation"`
	ChangeCount  int       `json:"changeCount"`
	LastModified string    `json:"lastModified"`
}

// prefixOps is matched in order; the first matching prefix wins.
var prefixOps = []struct {
	prefix string
	op     Operation
}{
	{"rm ", OpDeleted},
	{"mv ", OpModified},
	{"cp ", OpModified},
	{"tee ", OpModified},
	{"sed -i", OpModified},
	{"apply_patch", OpModified},
	{"git add ", OpModified},
	{"git mv ", OpModified},
	{"touch ", OpCreated},
	{"cat >", OpCreated},
	{"echo >", OpCreated},
	{"git rm ", OpDeleted},
}

// pathPattern accepts tokens that look like file paths: a final component
// with an extension, made of portable filename characters.
var pathPattern = regexp.MustCompile(`(^|/)[A-Za-z0-9._-]+\.[A-Za-z0-9._-]+$`)

// Extract folds a rollout line stream into per-path change summaries,
// preserving first-seen path order. Commands come from exec events and
// recorded shell calls.
func Extract(lines []*rollout.Line) []Change {
	var order []string
	byPath := make(map[string]*Change)
	everCreated := make(map[string]bool)
	deletedAfterCreate := make(map[string]bool)

	record := func(command []string, timestamp string) {
		if len(command) == 0 {
			return
		}
		op := classify(strings.Join(command, " "))
		for _, tok := range command {
			if !isCandidatePath(tok) {
				continue
			}
			ch, ok := byPath[tok]
			if !ok {
				ch = &Change{Path: tok}
				byPath[tok] = ch
				order = append(order, tok)
			}
			ch.ChangeCount++
			ch.LastModified = timestamp
			// A path deleted at any point after a create stays deleted, no
			// matter what follows; otherwise the latest operation wins.
			if op == OpCreated {
				everCreated[tok] = true
			}
			if op == OpDeleted && everCreated[tok] {
				deletedAfterCreate[tok] = true
			}
			if deletedAfterCreate[tok] {
				ch.Operation = OpDeleted
				continue
			}
			ch.Operation = op
		}
	}

	for _, line := range lines {
		switch {
		case line.EventMsg != nil && line.EventMsg.ExecCommandBegin != nil:
			record(line.EventMsg.ExecCommandBegin.Command, line.Timestamp)
		case line.ResponseItem != nil && line.ResponseItem.LocalShellCall != nil:
			record(line.ResponseItem.LocalShellCall.Action.Command, line.Timestamp)
		}
	}

	changes := make([]Change, 0, len(order))
	for _, p := range order {
		changes = append(changes, *byPath[p])
	}
	return changes
}

func classify(command string) Operation {
	for _, e := range prefixOps {
		if strings.HasPrefix(command, e.prefix) {
			return e.op
		}
	}
	return OpModified
}

func isCandidatePath(tok string) bool {
	if tok == "" || strings.HasPrefix(tok, "-") {
		return false
	}
	if strings.Contains(tok, "*") {
		return false
	}
	if strings.HasPrefix(tok, `"`) || strings.HasPrefix(tok, "'") {
		return false
	}
	return pathPattern.MatchString(tok)
}
