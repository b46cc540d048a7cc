package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codex-agent/codexd/internal/api"
	"github.com/codex-agent/codexd/internal/auth"
	"github.com/codex-agent/codexd/internal/hub"
	"github.com/codex-agent/codexd/internal/index"
	"github.com/codex-agent/codexd/internal/runner"
	"github.com/codex-agent/codexd/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the server in the foreground (default when no subcommand is given)",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	idx := index.New(cfg.CodexHome, logger)
	defer idx.Close()

	h := hub.New(idx, logger)
	h.Start()
	defer h.Stop()

	api.Version = version
	srv := api.NewServer(api.Deps{
		Config:      cfg,
		Index:       idx,
		Groups:      store.NewGroupStore(cfg.ConfigDir),
		Queues:      store.NewQueueStore(cfg.ConfigDir),
		Bookmarks:   store.NewBookmarkStore(cfg.ConfigDir),
		FileChanges: store.NewFileChangeStore(cfg.ConfigDir),
		Tokens:      auth.NewTokenStore(cfg.ConfigDir),
		Runner:      runner.New(logger),
		Hub:         h,
	}, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("codexd starting", "version", version, "addr", cfg.Addr(), "codexHome", cfg.CodexHome)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}

	logger.Info("codexd stopped")
	return nil
}
