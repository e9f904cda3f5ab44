package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsAndEnvOverride(t *testing.T) {
	t.Setenv("FIELDWATCH_CONFIG", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/fieldwatch")
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("HEARTBEAT_TIMEOUT", "2m")
	t.Setenv("NOTIFY_WORKERS", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("expected default http addr, got %s", cfg.HTTPAddr)
	}
	if cfg.HeartbeatTimeout != 2*time.Minute {
		t.Fatalf("expected heartbeat override, got %s", cfg.HeartbeatTimeout)
	}
	if cfg.SampleLogInterval != 15*time.Minute {
		t.Fatalf("expected default sample interval, got %s", cfg.SampleLogInterval)
	}
	if cfg.NotifyWorkers != 8 {
		t.Fatalf("expected worker override, got %d", cfg.NotifyWorkers)
	}
}

func TestLoadYAMLThenEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fieldwatch.yaml")
	data := []byte("database_url: postgres://yaml/db\nhttp_addr: \":9090\"\njwt_secret: from-yaml\nheartbeat_timeout: 45s\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("FIELDWATCH_CONFIG", path)
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("HEARTBEAT_TIMEOUT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://env/db" {
		t.Fatalf("expected env to win, got %s", cfg.DatabaseURL)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("expected yaml http addr, got %s", cfg.HTTPAddr)
	}
	if cfg.JWTSecret != "from-yaml" {
		t.Fatalf("expected yaml jwt secret, got %s", cfg.JWTSecret)
	}
	if cfg.HeartbeatTimeout != 45*time.Second {
		t.Fatalf("expected yaml heartbeat, got %s", cfg.HeartbeatTimeout)
	}
}

func TestValidateRejectsMissingRequired(t *testing.T) {
	t.Setenv("FIELDWATCH_CONFIG", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("AUTH_JWT_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing database url")
	}

	cfg.DatabaseURL = "postgres://localhost/fieldwatch"
	cfg.JWTSecret = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing jwt secret")
	}
}
