package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLoadSubstitutesEnv(t *testing.T) {
	t.Setenv("EMBEDPREF_TEST_DSN", "postgres://u:p@db/embedpref")

	dir := t.TempDir()
	path := filepath.Join(dir, "embedpref.json")
	raw := `{
		"server": {"port": ${EMBEDPREF_TEST_PORT:4000}, "session_idle": "10m"},
		"database": {
			"postgres": {"dsn": "${EMBEDPREF_TEST_DSN}"},
			"redis": {"url": "${EMBEDPREF_TEST_REDIS:}"}
		},
		"notify": {"slack": {"enabled": true, "webhook_url": "https://hooks.example/x"}}
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("port = %d, want default 4000", cfg.Server.Port)
	}
	if cfg.Database.Postgres.DSN != "postgres://u:p@db/embedpref" {
		t.Errorf("dsn = %q", cfg.Database.Postgres.DSN)
	}
	if cfg.Database.Redis.URL != "" {
		t.Errorf("redis url = %q, want empty", cfg.Database.Redis.URL)
	}
	if !cfg.Notify.Slack.Enabled {
		t.Error("expected slack enabled")
	}
	if got := cfg.SessionIdleTimeout(); got != 10*time.Minute {
		t.Errorf("session idle = %v", got)
	}
	if got := cfg.CacheTTL(); got != 5*time.Minute {
		t.Errorf("cache ttl = %v, want default", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestListenPortDefault(t *testing.T) {
	cfg, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenPort() != 3001 {
		t.Errorf("port = %d, want 3001", cfg.ListenPort())
	}
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	cfg := &Config{Server: ServerConfig{LogLevel: "warn"}}
	logger, err := cfg.NewLogger()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if logger.Core().Enabled(zap.InfoLevel) {
		t.Error("info enabled at warn level")
	}
	if !logger.Core().Enabled(zap.WarnLevel) {
		t.Error("warn disabled at warn level")
	}

	dev, err := (&Config{}).NewLogger()
	if err != nil {
		t.Fatalf("default logger: %v", err)
	}
	if !dev.Core().Enabled(zap.DebugLevel) {
		t.Error("default level should be debug")
	}

	if _, err := (&Config{Server: ServerConfig{LogLevel: "loud"}}).NewLogger(); err == nil {
		t.Error("expected error for unknown level")
	}
}
