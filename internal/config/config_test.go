package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
	if cfg.UploadTimeout() != 30*time.Second {
		t.Errorf("Expected 30s upload timeout, got %v", cfg.UploadTimeout())
	}
	if cfg.Server.ListLimit != 50 {
		t.Errorf("Expected list limit 50, got %d", cfg.Server.ListLimit)
	}
}

func TestSaveAndLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "config.json")
	cfg := Default()
	cfg.Model.Backend = "ollama"
	cfg.Upload.TimeoutSeconds = 10

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Model.Backend != "ollama" || loaded.Upload.TimeoutSeconds != 10 {
		t.Errorf("Unexpected loaded config %+v", loaded)
	}
}

func TestLoadYAMLKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "model:\n  backend: llamacpp\n  vision_url: http://gpu:8080\nserver:\n  addr: \":9000\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Model.Backend != "llamacpp" || cfg.Server.Addr != ":9000" {
		t.Errorf("Unexpected config %+v", cfg)
	}
	if cfg.Model.ImageSize != 224 {
		t.Errorf("Expected default image size 224, got %d", cfg.Model.ImageSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Unexpected validation error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Model.Backend = "tflite"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for unknown backend")
	}

	cfg = Default()
	cfg.Upload.TimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for zero timeout")
	}

	cfg = Default()
	cfg.Model.LabelsPath = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error without labels or metadata")
	}
}

func TestApplyEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envFile, []byte("PALMSCAN_USER_ID=grower_7\n"), 0644); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("PALMSCAN_USER_ID") })

	t.Setenv("PALMSCAN_BACKEND", "ollama")
	t.Setenv("PALMSCAN_UPLOAD_TIMEOUT", "12")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "palm")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "scans")
	t.Setenv("POSTGRES_PORT", "")

	cfg := Default()
	if err := cfg.ApplyEnv(envFile); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if cfg.Model.Backend != "ollama" {
		t.Errorf("Expected backend ollama, got %s", cfg.Model.Backend)
	}
	if cfg.Upload.TimeoutSeconds != 12 {
		t.Errorf("Expected timeout 12, got %d", cfg.Upload.TimeoutSeconds)
	}
	if cfg.Upload.UserID != "grower_7" {
		t.Errorf("Expected user id from .env, got %q", cfg.Upload.UserID)
	}
	if cfg.Server.DatabaseURL != "postgres://palm:secret@db:5432/scans" {
		t.Errorf("Unexpected database URL %s", cfg.Server.DatabaseURL)
	}
}

func TestApplyEnvBadTimeout(t *testing.T) {
	t.Setenv("PALMSCAN_UPLOAD_TIMEOUT", "soon")

	if err := Default().ApplyEnv(""); err == nil {
		t.Error("Expected error for non-numeric timeout")
	}
}
