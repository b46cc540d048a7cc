package runner

import (
	"context"
	"errors"
	"sync"

	"github.com/codex-agent/codexd/internal/store"
)

// ErrGroupPaused rejects a run request against a paused group.
var ErrGroupPaused = errors.New("group is paused")

// DefaultMaxConcurrent bounds group fan-out when the caller does not.
const DefaultMaxConcurrent = 3

// GroupEventType tags group run progress events.
type GroupEventType string

const (
	GroupSessionStarted   GroupEventType = "session_started"
	GroupSessionCompleted GroupEventType = "session_completed"
	GroupSessionFailed    GroupEventType = "session_failed"
	GroupCompleted        GroupEventType = "group_completed"
)

// GroupEvent is one progress notification. Every event carries snapshots of
// all four scheduler sets.
type GroupEvent struct {
	Type      GroupEventType `json:"type"`
	SessionID string         `json:"sessionId,omitempty"`
	ExitCode  int            `json:"exitCode,omitempty"`
	Pending   []string       `json:"pending"`
	Running   []string       `json:"running"`
	Completed []string       `json:"completed"`
	Failed    []string       `json:"failed"`
}

type sessionResult struct {
	id       string
	exitCode int
}

// RunGroup fans one prompt out across the group's sessions with bounded
// concurrency, resuming each session in order. Events arrive on the returned
// channel, which closes after group_completed. Cancelling ctx terminates
// in-flight children and ends the stream early.
func (r *Runner) RunGroup(ctx context.Context, g store.Group, prompt string, maxConcurrent int, opts Options) (<-chan GroupEvent, error) {
	if g.Paused {
		return nil, ErrGroupPaused
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	events := make(chan GroupEvent, 16)
	go r.runGroup(ctx, g, prompt, maxConcurrent, opts, events)
	return events, nil
}

func (r *Runner) runGroup(ctx context.Context, g store.Group, prompt string, maxConcurrent int, opts Options, events chan<- GroupEvent) {
	defer close(events)

	logger := r.logger.With("group", g.ID)

	pending := append([]string(nil), g.SessionIDs...)
	var running, completed, failed []string

	results := make(chan sessionResult)
	var handles sync.Map
	var wg sync.WaitGroup
	defer wg.Wait()

	snapshot := func(ev GroupEvent) GroupEvent {
		ev.Pending = append([]string{}, pending...)
		ev.Running = append([]string{}, running...)
		ev.Completed = append([]string{}, completed...)
		ev.Failed = append([]string{}, failed...)
		return ev
	}
	send := func(ev GroupEvent) bool {
		select {
		case events <- snapshot(ev):
			return true
		case <-ctx.Done():
			return false
		}
	}
	cancelAll := func() {
		handles.Range(func(_, v any) bool {
			v.(*Handle).Terminate()
			return true
		})
	}

	launch := func(id string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stream, err := r.SpawnStream(ctx, Request{Prompt: prompt, ResumeID: id}, opts)
			if err != nil {
				logger.Warn("spawn failed", "session", id, "error", err)
				select {
				case results <- sessionResult{id: id, exitCode: 1}:
				case <-ctx.Done():
				}
				return
			}
			handles.Store(id, stream.Handle)
			defer handles.Delete(id)
			for range stream.Lines {
			}
			code := <-stream.Done
			select {
			case results <- sessionResult{id: id, exitCode: code}:
			case <-ctx.Done():
			}
		}()
	}

	for len(pending) > 0 || len(running) > 0 {
		// Promote from the head of pending while slots remain.
		for len(running) < maxConcurrent && len(pending) > 0 {
			id := pending[0]
			pending = pending[1:]
			running = append(running, id)
			if !send(GroupEvent{Type: GroupSessionStarted, SessionID: id}) {
				cancelAll()
				return
			}
			launch(id)
		}

		select {
		case res := <-results:
			for i, id := range running {
				if id == res.id {
					running = append(running[:i], running[i+1:]...)
					break
				}
			}
			ev := GroupEvent{SessionID: res.id, ExitCode: res.exitCode}
			if res.exitCode == 0 {
				completed = append(completed, res.id)
				ev.Type = GroupSessionCompleted
			} else {
				failed = append(failed, res.id)
				ev.Type = GroupSessionFailed
			}
			if !send(ev) {
				cancelAll()
				return
			}
		case <-ctx.Done():
			cancelAll()
			return
		}
	}

	send(GroupEvent{Type: GroupCompleted})
}
