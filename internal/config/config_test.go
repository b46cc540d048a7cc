package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"CODEX_HOME", "CODEX_AGENT_HOST", "CODEX_AGENT_PORT", "CODEX_AGENT_TOKEN", "CODEX_AGENT_TRANSPORT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 3100 || cfg.Host != "127.0.0.1" {
		t.Fatalf("addr defaults = %s", cfg.Addr())
	}
	if cfg.Transport != "local-cli" || cfg.AgentBinary != "codex" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if filepath.Base(cfg.CodexHome) != ".codex" {
		t.Fatalf("codex home = %s", cfg.CodexHome)
	}
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"port": 4000, "host": "0.0.0.0", "poll_interval": "2s"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CODEX_AGENT_PORT", "5000")
	t.Setenv("CODEX_HOME", "/custom/codex")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 5000 {
		t.Fatalf("port = %d, env should win over file", cfg.Port)
	}
	if cfg.Host != "0.0.0.0" {
		t.Fatalf("host = %s, file value should survive", cfg.Host)
	}
	if cfg.CodexHome != "/custom/codex" {
		t.Fatalf("codex home = %s", cfg.CodexHome)
	}
	if cfg.PollInterval.Duration != 2*time.Second {
		t.Fatalf("poll interval = %s", cfg.PollInterval)
	}
}

func TestLoadRejectsBadTransport(t *testing.T) {
	t.Setenv("CODEX_AGENT_TRANSPORT", "carrier-pigeon")
	if _, err := Load(""); err == nil {
		t.Fatal("expected transport validation error")
	}
}

func TestLoadMissingFileIsFine(t *testing.T) {
	t.Setenv("CODEX_AGENT_TRANSPORT", "app-server")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Transport != "app-server" {
		t.Fatalf("transport = %s", cfg.Transport)
	}
}
