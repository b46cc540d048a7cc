// Package runner spawns the external agent binary and orchestrates runs:
// single processes, group fan-out, and sequential queue drains.
package runner

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/codex-agent/codexd/internal/rollout"
)

// Options shape the agent invocation. Zero values are omitted from argv.
type Options struct {
	Binary          string // default "codex"
	Model           string
	Sandbox         string
	ApprovalMode    string
	FullAuto        bool
	Images          []string // filesystem paths, already materialized
	ConfigOverrides []string // repeated -c k=v
	WorkDir         string
}

// Request selects the run mode. ResumeID alone resumes; ResumeID plus a
// positive NthMessage forks from that point.
type Request struct {
	Prompt     string
	ResumeID   string
	NthMessage int
}

// Handle is a started agent process.
type Handle struct {
	PID int

	cmd *exec.Cmd
}

// Terminate sends an interrupt to the child. Used for cooperative cancel.
func (h *Handle) Terminate() {
	if h.cmd != nil && h.cmd.Process != nil {
		_ = h.cmd.Process.Signal(os.Interrupt)
	}
}

// Kill forcefully stops the child.
func (h *Handle) Kill() {
	if h.cmd != nil && h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
}

// ExecResult is the buffered outcome of a completed run.
type ExecResult struct {
	ExitCode int
	Lines    []*rollout.Line
}

// Stream is a live run: Lines carries parsed stdout records in order and
// closes at EOF; Done then yields the exit code exactly once.
type Stream struct {
	Handle *Handle
	Lines  <-chan *rollout.Line
	Done   <-chan int
}

// Runner builds argv and spawns agent processes.
type Runner struct {
	logger *slog.Logger
}

// New creates a runner.
func New(logger *slog.Logger) *Runner {
	return &Runner{logger: logger.With("component", "runner")}
}

// buildArgs maps a request and options onto the agent's exec CLI.
func buildArgs(req Request, opts Options) []string {
	args := []string{"exec"}
	if req.ResumeID != "" {
		args = append(args, "resume", req.ResumeID)
		if req.NthMessage > 0 {
			args = append(args, "--nth-message", fmt.Sprintf("%d", req.NthMessage))
		}
	}
	args = append(args, "--json", "--color", "never")

	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.Sandbox != "" {
		args = append(args, "--sandbox", opts.Sandbox)
	}
	if opts.ApprovalMode != "" {
		args = append(args, "--ask-for-approval", opts.ApprovalMode)
	}
	if opts.FullAuto && opts.Sandbox == "" && opts.ApprovalMode == "" {
		args = append(args, "--full-auto")
	}
	for _, img := range opts.Images {
		args = append(args, "--image", img)
	}
	for _, kv := range opts.ConfigOverrides {
		args = append(args, "-c", kv)
	}

	// The prompt text is the final argument.
	args = append(args, req.Prompt)
	return args
}

func (r *Runner) start(ctx context.Context, req Request, opts Options) (*Handle, *bufio.Scanner, func() int, error) {
	binary := opts.Binary
	if binary == "" {
		binary = "codex"
	}

	cmd := exec.CommandContext(ctx, binary, buildArgs(req, opts)...)
	cmd.Env = os.Environ()
	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, nil, fmt.Errorf("start %s: %w", binary, err)
	}

	// Drain stderr so the child never blocks on a full pipe; surface lines
	// at debug level.
	go func() {
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			r.logger.Debug("agent stderr", "pid", cmd.Process.Pid, "line", scanner.Text())
		}
	}()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	wait := func() int {
		err := cmd.Wait()
		if cmd.ProcessState != nil {
			if code := cmd.ProcessState.ExitCode(); code >= 0 {
				return code
			}
		}
		if err != nil {
			return 1
		}
		return 0
	}

	return &Handle{PID: cmd.Process.Pid, cmd: cmd}, scanner, wait, nil
}

// Spawn starts a run and returns its handle without consuming output. The
// caller must eventually call Wait on the stream variants instead when it
// needs the lines; Spawn is for fire-and-forget runs.
func (r *Runner) Spawn(ctx context.Context, req Request, opts Options) (*Handle, error) {
	h, scanner, wait, err := r.start(ctx, req, opts)
	if err != nil {
		return nil, err
	}
	go func() {
		for scanner.Scan() {
		}
		_ = wait()
	}()
	return h, nil
}

// SpawnExec runs to completion and returns the exit code plus every parsed
// stdout line.
func (r *Runner) SpawnExec(ctx context.Context, req Request, opts Options) (*ExecResult, error) {
	_, scanner, wait, err := r.start(ctx, req, opts)
	if err != nil {
		return nil, err
	}

	var lines []*rollout.Line
	for scanner.Scan() {
		if line, ok := normalizeLine(scanner.Bytes()); ok {
			lines = append(lines, line)
		}
	}
	return &ExecResult{ExitCode: wait(), Lines: lines}, nil
}

// SpawnStream starts a run and streams parsed lines as they arrive.
func (r *Runner) SpawnStream(ctx context.Context, req Request, opts Options) (*Stream, error) {
	h, scanner, wait, err := r.start(ctx, req, opts)
	if err != nil {
		return nil, err
	}

	lines := make(chan *rollout.Line, 64)
	done := make(chan int, 1)
	drained := make(chan struct{})

	go func() {
		defer close(drained)
		defer close(lines)
		for scanner.Scan() {
			if line, ok := normalizeLine(scanner.Bytes()); ok {
				lines <- line
			}
		}
	}()
	go func() {
		<-drained
		done <- wait()
	}()

	return &Stream{Handle: h, Lines: lines, Done: done}, nil
}
