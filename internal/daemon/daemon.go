// Package daemon provides helpers for running the server as a background
// process: PID file management, detached re-exec, and health polling.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const (
	pidFile = "daemon.pid"
	logFile = "daemon.log"

	healthTimeout  = 10 * time.Second
	healthInterval = 200 * time.Millisecond
	stopTimeout    = 5 * time.Second
)

// PIDPath returns the path to the PID file under the config directory.
func PIDPath(configDir string) string {
	return filepath.Join(configDir, pidFile)
}

// LogPath returns the path to the daemon log file.
func LogPath(configDir string) string {
	return filepath.Join(configDir, logFile)
}

// WritePID records the given PID.
func WritePID(configDir string, pid int) error {
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(PIDPath(configDir), []byte(strconv.Itoa(pid)+"\n"), 0o600)
}

// ReadPID reads the recorded PID. Returns 0 if no PID file exists.
func ReadPID(configDir string) (int, error) {
	data, err := os.ReadFile(PIDPath(configDir))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// RemovePID removes the PID file.
func RemovePID(configDir string) error {
	err := os.Remove(PIDPath(configDir))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// OpenLogFile opens or creates the daemon log file for appending.
func OpenLogFile(configDir string) (*os.File, error) {
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	return os.OpenFile(LogPath(configDir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}

// IsRunning reports whether a process with the given PID is alive.
func IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// Spawn re-executes the current binary with the given arguments as a
// detached child, redirecting its output to the daemon log, and records
// the child's PID.
func Spawn(configDir string, args ...string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve executable: %w", err)
	}

	logf, err := OpenLogFile(configDir)
	if err != nil {
		return 0, err
	}
	defer func() { _ = logf.Close() }()

	cmd := exec.Command(exe, args...)
	cmd.Stdout = logf
	cmd.Stderr = logf
	cmd.SysProcAttr = detachSysProcAttr()
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start daemon: %w", err)
	}

	pid := cmd.Process.Pid
	if err := WritePID(configDir, pid); err != nil {
		return pid, err
	}
	// The child outlives us; release so its exit never blocks on a wait.
	_ = cmd.Process.Release()
	return pid, nil
}

// WaitHealthy polls the server's health endpoint until it answers or the
// timeout elapses.
func WaitHealthy(ctx context.Context, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	url := strings.TrimSuffix(baseURL, "/") + "/health"
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("server did not become healthy: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Stop terminates the recorded daemon process: graceful first, then a hard
// kill after the timeout. The PID file is removed on success.
func Stop(configDir string) error {
	pid, err := ReadPID(configDir)
	if err != nil {
		return err
	}
	if pid == 0 || !IsRunning(pid) {
		return RemovePID(configDir)
	}

	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return RemovePID(configDir)
	}
	if err := p.Terminate(); err != nil {
		return fmt.Errorf("terminate pid %d: %w", pid, err)
	}

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if !IsRunning(pid) {
			return RemovePID(configDir)
		}
		time.Sleep(200 * time.Millisecond)
	}
	if err := p.Kill(); err != nil {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return RemovePID(configDir)
}
