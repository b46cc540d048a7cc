package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/codex-agent/codexd/internal/daemon"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the server as a background daemon",
		Args:  cobra.NoArgs,
		RunE:  runStart,
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if pid, err := daemon.ReadPID(cfg.ConfigDir); err == nil && daemon.IsRunning(pid) {
		return fmt.Errorf("already running (pid %d)", pid)
	}

	spawnArgs := []string{"serve"}
	if f := cmd.Root().PersistentFlags().Lookup("config"); f != nil && f.Changed {
		spawnArgs = append(spawnArgs, "--config", f.Value.String())
	}

	pid, err := daemon.Spawn(cfg.ConfigDir, spawnArgs...)
	if err != nil {
		return err
	}

	baseURL := "http://" + cfg.Addr()
	if err := daemon.WaitHealthy(context.Background(), baseURL); err != nil {
		return fmt.Errorf("daemon started (pid %d) but %w", pid, err)
	}
	fmt.Printf("codexd running (pid %d) at %s\n", pid, baseURL)
	return nil
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := daemon.Stop(cfg.ConfigDir); err != nil {
				return err
			}
			fmt.Println("codexd stopped")
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running and its server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			pid, err := daemon.ReadPID(cfg.ConfigDir)
			if err != nil {
				return err
			}
			if pid == 0 || !daemon.IsRunning(pid) {
				fmt.Println("codexd is not running")
				return nil
			}
			fmt.Printf("codexd running (pid %d)\n", pid)

			client := &http.Client{Timeout: 3 * time.Second}
			resp, err := client.Get("http://" + cfg.Addr() + "/status")
			if err != nil {
				fmt.Printf("server not answering at %s: %v\n", cfg.Addr(), err)
				return nil
			}
			defer func() { _ = resp.Body.Close() }()

			var status map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}
			fmt.Printf("version: %v\nuptime: %vs\ncodex home: %v\ntransport: %v\n",
				status["version"], status["uptimeSeconds"], status["codexHome"], status["transport"])
			return nil
		},
	}
}
