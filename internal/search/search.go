// Package search scans rollout transcripts for a substring under an
// event/byte/deadline budget.
package search

import (
	"bufio"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/codex-agent/codexd/internal/rollout"
)

// ErrEmptyQuery rejects queries that are empty after trimming.
var ErrEmptyQuery = errors.New("empty query")

// Role filters which transcript sides are scanned.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleBoth      Role = "both"
)

// Budget caps how much of a transcript is scanned. Zero fields mean
// unbounded.
type Budget struct {
	MaxBytes  int64
	MaxEvents int
	TimeoutMs int
}

// Options configure one search.
type Options struct {
	Query         string
	Role          Role // default both
	CaseSensitive bool
	Budget        Budget
}

// Result reports the outcome. Budget exhaustion is a successful result with
// Truncated or TimedOut set, never an error.
type Result struct {
	Matched       bool  `json:"matched"`
	MatchCount    int   `json:"matchCount"`
	ScannedBytes  int64 `json:"scannedBytes"`
	ScannedEvents int   `json:"scannedEvents"`
	Truncated     bool  `json:"truncated"`
	TimedOut      bool  `json:"timedOut"`
	DurationMs    int64 `json:"durationMs"`
}

// File streams a rollout file and counts non-overlapping occurrences of the
// query in its transcript text.
func File(path string, opts Options) (*Result, error) {
	query := strings.TrimSpace(opts.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	role := opts.Role
	if role == "" {
		role = RoleBoth
	}
	if !opts.CaseSensitive {
		query = strings.ToLower(query)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	start := time.Now()
	var deadline time.Time
	if opts.Budget.TimeoutMs > 0 {
		deadline = start.Add(time.Duration(opts.Budget.TimeoutMs) * time.Millisecond)
	}

	res := &Result{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			res.TimedOut = true
			break
		}
		line, ok := rollout.ParseLine(scanner.Bytes())
		if !ok {
			continue
		}
		texts := extractTexts(line, role)
		if len(texts) == 0 {
			continue
		}

		var lineBytes int64
		for _, t := range texts {
			lineBytes += int64(len(t))
		}
		// Deterministic truncation: stop before the event whose text would
		// exceed the byte budget, and after maxEvents counted events.
		if opts.Budget.MaxBytes > 0 && res.ScannedBytes+lineBytes > opts.Budget.MaxBytes {
			res.Truncated = true
			break
		}
		if opts.Budget.MaxEvents > 0 && res.ScannedEvents >= opts.Budget.MaxEvents {
			res.Truncated = true
			break
		}

		res.ScannedEvents++
		res.ScannedBytes += lineBytes
		for _, t := range texts {
			if !opts.CaseSensitive {
				t = strings.ToLower(t)
			}
			res.MatchCount += strings.Count(t, query)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	res.Matched = res.MatchCount > 0
	res.DurationMs = time.Since(start).Milliseconds()
	return res, nil
}

func extractTexts(line *rollout.Line, role Role) []string {
	user := role == RoleUser || role == RoleBoth
	assistant := role == RoleAssistant || role == RoleBoth

	var texts []string
	switch {
	case line.EventMsg != nil:
		ev := line.EventMsg
		if user && ev.UserMessage != nil {
			texts = append(texts, ev.UserMessage.Message)
		}
		if assistant {
			if ev.AgentMessage != nil {
				texts = append(texts, ev.AgentMessage.Message)
			}
			if ev.AgentReasoning != nil {
				texts = append(texts, ev.AgentReasoning.Text)
			}
			if ev.TurnComplete != nil && ev.TurnComplete.LastAgentMessage != "" {
				texts = append(texts, ev.TurnComplete.LastAgentMessage)
			}
		}

	case line.ResponseItem != nil:
		item := line.ResponseItem
		if item.Message != nil {
			isUser := item.Message.Role == "user"
			if (isUser && user) || (!isUser && assistant) {
				for _, c := range item.Message.Content {
					if (c.Type == "input_text" || c.Type == "output_text") && c.Text != "" {
						texts = append(texts, c.Text)
					}
				}
			}
		}
		if assistant && item.Reasoning != nil {
			for _, s := range item.Reasoning.Summary {
				if s.Text != "" {
					texts = append(texts, s.Text)
				}
			}
		}
	}
	return texts
}
