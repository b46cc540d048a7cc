package runner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/codex-agent/codexd/internal/store"
)

// QueueEventType tags queue drain progress events.
type QueueEventType string

const (
	QueuePromptStarted   QueueEventType = "prompt_started"
	QueuePromptCompleted QueueEventType = "prompt_completed"
	QueuePromptFailed    QueueEventType = "prompt_failed"
	QueueCompleted       QueueEventType = "queue_completed"
	QueueStopped         QueueEventType = "queue_stopped"
)

// QueueEvent is one drain progress notification with prompt-id snapshots.
type QueueEvent struct {
	Type      QueueEventType `json:"type"`
	PromptID  string         `json:"promptId,omitempty"`
	ExitCode  int            `json:"exitCode,omitempty"`
	Pending   []string       `json:"pending"`
	Completed []string       `json:"completed"`
	Failed    []string       `json:"failed"`
}

// StopSignal requests a graceful stop: the drain finishes the current prompt
// and then emits queue_stopped.
type StopSignal struct {
	stopped atomic.Bool
}

// Stop sets the flag. Safe from any goroutine.
func (s *StopSignal) Stop() { s.stopped.Store(true) }

// Stopped reports whether a stop was requested.
func (s *StopSignal) Stopped() bool { return s.stopped.Load() }

const (
	pauseBackoffMin = 200 * time.Millisecond
	pauseBackoffMax = 2 * time.Second
)

// RunQueue drains the queue's pending prompts sequentially against its
// project directory. Pause state is reloaded live from the store; manual-mode
// prompts are left pending for external triggering. Cancelling ctx requests a
// graceful stop like Stop does: the in-flight prompt runs to completion and
// its outcome is persisted before the drain ends. The returned channel closes
// after queue_completed or queue_stopped.
func (r *Runner) RunQueue(ctx context.Context, queues *store.QueueStore, queueID string, opts Options, stop *StopSignal) (<-chan QueueEvent, error) {
	if _, err := queues.Get(queueID); err != nil {
		return nil, err
	}
	if stop == nil {
		stop = &StopSignal{}
	}

	events := make(chan QueueEvent, 16)
	go r.runQueue(ctx, queues, queueID, opts, stop, events)
	return events, nil
}

func (r *Runner) runQueue(ctx context.Context, queues *store.QueueStore, queueID string, opts Options, stop *StopSignal, events chan<- QueueEvent) {
	defer close(events)

	logger := r.logger.With("queue", queueID)

	send := func(ev QueueEvent, q *store.Queue) bool {
		for _, p := range q.Prompts {
			switch p.Status {
			case store.PromptPending:
				ev.Pending = append(ev.Pending, p.ID)
			case store.PromptCompleted:
				ev.Completed = append(ev.Completed, p.ID)
			case store.PromptFailed:
				ev.Failed = append(ev.Failed, p.ID)
			}
		}
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	backoff := pauseBackoffMin
	for {
		q, err := queues.Get(queueID)
		if err != nil {
			logger.Warn("queue vanished during drain", "error", err)
			return
		}

		// Consumer cancellation is a stop request: it takes effect between
		// prompts, never by killing one mid-run.
		stopRequested := stop.Stopped() || ctx.Err() != nil

		if q.Paused && !stopRequested {
			// Busy-wait with backoff until unpaused or stopped.
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			if backoff *= 2; backoff > pauseBackoffMax {
				backoff = pauseBackoffMax
			}
			continue
		}
		backoff = pauseBackoffMin

		if stopRequested {
			send(QueueEvent{Type: QueueStopped}, q)
			return
		}

		next := nextAutoPending(q)
		if next == nil {
			send(QueueEvent{Type: QueueCompleted}, q)
			return
		}

		q, err = queues.MarkPromptRunning(queueID, next.ID)
		if err != nil {
			logger.Warn("persist running state", "prompt", next.ID, "error", err)
			return
		}
		send(QueueEvent{Type: QueuePromptStarted, PromptID: next.ID}, q)

		// Detached context: once a prompt is marked running its child must
		// finish and have its true outcome persisted.
		res, err := r.SpawnExec(context.Background(), Request{Prompt: next.Prompt}, Options{
			Binary:          opts.Binary,
			Model:           opts.Model,
			Sandbox:         opts.Sandbox,
			ApprovalMode:    opts.ApprovalMode,
			FullAuto:        opts.FullAuto,
			ConfigOverrides: opts.ConfigOverrides,
			Images:          next.Images,
			WorkDir:         q.ProjectPath,
		})
		exitCode := 1
		if err != nil {
			logger.Warn("spawn failed", "prompt", next.ID, "error", err)
		} else {
			exitCode = res.ExitCode
		}

		q, err = queues.MarkPromptDone(queueID, next.ID, exitCode)
		if err != nil {
			logger.Warn("persist finished state", "prompt", next.ID, "error", err)
			return
		}
		ev := QueueEvent{Type: QueuePromptCompleted, PromptID: next.ID, ExitCode: exitCode}
		if exitCode != 0 {
			ev.Type = QueuePromptFailed
		}
		send(ev, q)
	}
}

// nextAutoPending returns the first pending auto-mode prompt. Manual prompts
// are skipped, staying pending until triggered externally.
func nextAutoPending(q *store.Queue) *store.QueuePrompt {
	for i := range q.Prompts {
		p := &q.Prompts[i]
		if p.Status == store.PromptPending && p.Mode != store.ModeManual {
			return p
		}
	}
	return nil
}
