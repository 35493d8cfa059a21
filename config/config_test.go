package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("DETECT_MIN_LENGTH", "")
	t.Setenv("GLOBAL_REFRESH_CHECK_INTERVAL", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.DBDsn == "" {
		t.Errorf("expected default db dsn, got empty")
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q, want localhost:6379", cfg.RedisAddr)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.DetectMinLength != 10 {
		t.Errorf("DetectMinLength = %d, want 10", cfg.DetectMinLength)
	}
	if cfg.GlobalRefreshCheckInterval != time.Hour {
		t.Errorf("GlobalRefreshCheckInterval = %v, want 1h", cfg.GlobalRefreshCheckInterval)
	}
}

func TestLoadInvalidMinLength(t *testing.T) {
	t.Setenv("DETECT_MIN_LENGTH", "zero")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for non-numeric DETECT_MIN_LENGTH")
	}
	t.Setenv("DETECT_MIN_LENGTH", "0")
	if _, err := Load(); err == nil {
		t.Errorf("expected error for DETECT_MIN_LENGTH=0")
	}
}

func TestLoadRefreshInterval(t *testing.T) {
	t.Setenv("GLOBAL_REFRESH_CHECK_INTERVAL", "15m")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GlobalRefreshCheckInterval != 15*time.Minute {
		t.Errorf("GlobalRefreshCheckInterval = %v, want 15m", cfg.GlobalRefreshCheckInterval)
	}
}

func TestValidateEmoteProviderReady(t *testing.T) {
	t.Setenv("TWITCH_CLIENT_ID", "id")
	t.Setenv("TWITCH_CLIENT_SECRET", "secret")
	cfg, _ := Load()
	if err := cfg.ValidateEmoteProviderReady(); err != nil {
		t.Errorf("expected valid provider config, got %v", err)
	}
	if err := os.Unsetenv("TWITCH_CLIENT_SECRET"); err != nil {
		t.Fatalf("failed to unset TWITCH_CLIENT_SECRET: %v", err)
	}
	cfg, _ = Load()
	if err := cfg.ValidateEmoteProviderReady(); err == nil {
		t.Errorf("expected error when missing twitch envs")
	}
}
