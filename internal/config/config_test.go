package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
port: "8080"
databaseURL: "postgres://localhost/hausdesk"
redisAddr: "localhost:6379"
sessionSecret: "test-secret"
minioEndpoint: "localhost:9000"
minioBucket: "hausdesk"
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("unexpected port: %q", cfg.Port)
	}
	if cfg.MinioBucket != "hausdesk" {
		t.Fatalf("unexpected bucket: %q", cfg.MinioBucket)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db.internal/hausdesk")
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://db.internal/hausdesk" {
		t.Fatalf("env override not applied: %q", cfg.DatabaseURL)
	}
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	body := `
port: "8080"
databaseURL: "postgres://localhost/hausdesk"
redisAddr: "localhost:6379"
minioEndpoint: "localhost:9000"
minioBucket: "hausdesk"
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected validation error for missing sessionSecret")
	}
}

func TestParseSessionTTL(t *testing.T) {
	dur, err := ParseSessionTTL("30m")
	if err != nil {
		t.Fatalf("parse ttl: %v", err)
	}
	if dur != 30*time.Minute {
		t.Fatalf("unexpected duration: %v", dur)
	}
	if _, err := ParseSessionTTL("nonsense"); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
	if dur, err := ParseSessionTTL(""); err != nil || dur != 0 {
		t.Fatalf("empty ttl should be zero, got %v %v", dur, err)
	}
}
