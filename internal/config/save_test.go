package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveCreatesParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "deep", "config.json")

	if err := Save(DefaultConfig(), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Config file was not created: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Config file contains invalid JSON: %v", err)
	}
	if _, ok := raw["max_concurrent_tasks"]; !ok {
		t.Errorf("expected snake_case keys, got %v", raw)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.QueueMaxSize = 0

	if err := Save(cfg, path); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("invalid config was written")
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.Workers = 3
	cfg.TickInterval = 250 * time.Millisecond
	cfg.Retry.Multiplier = 2
	cfg.Breaker.Enabled = true
	cfg.Archive.Enabled = true
	cfg.Archive.Path = "/tmp/results.db"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Workers != 3 {
		t.Errorf("workers = %d, want 3", loaded.Workers)
	}
	if loaded.TickInterval != 250*time.Millisecond {
		t.Errorf("tick interval = %s, want 250ms", loaded.TickInterval)
	}
	if loaded.Retry.Multiplier != 2 {
		t.Errorf("retry multiplier = %v, want 2", loaded.Retry.Multiplier)
	}
	if !loaded.Breaker.Enabled || !loaded.Archive.Enabled || loaded.Archive.Path != "/tmp/results.db" {
		t.Errorf("breaker/archive not preserved: %+v %+v", loaded.Breaker, loaded.Archive)
	}
}
