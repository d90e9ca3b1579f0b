package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/storyreel")
	t.Setenv("PORT", "")
	t.Setenv("GEMINI_MODEL", "")
	t.Setenv("WORKER_POLL_SECONDS", "")
	t.Setenv("SHOT_THROTTLE_SECONDS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if cfg.GeminiModel != "gemini-2.5-flash" {
		t.Fatalf("GeminiModel = %q", cfg.GeminiModel)
	}
	if cfg.WorkerPollEvery != 2*time.Second {
		t.Fatalf("WorkerPollEvery = %v", cfg.WorkerPollEvery)
	}
	if cfg.ShotThrottle != 3*time.Second {
		t.Fatalf("ShotThrottle = %v", cfg.ShotThrottle)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/storyreel")
	t.Setenv("SHOT_THROTTLE_SECONDS", "7")
	t.Setenv("STORAGE_BASE_URL", "https://cdn.example.com/static")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ShotThrottle != 7*time.Second {
		t.Fatalf("ShotThrottle = %v", cfg.ShotThrottle)
	}
	if cfg.StorageBaseURL != "https://cdn.example.com/static" {
		t.Fatalf("StorageBaseURL = %q", cfg.StorageBaseURL)
	}
}
