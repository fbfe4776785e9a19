package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveCreatesFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg := DefaultConfig()
	cfg.Run.MaxConcurrency = 7

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("Config file was not created: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	var loaded EngineConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Config file contains invalid JSON: %v", err)
	}
	if loaded.Run.MaxConcurrency != 7 {
		t.Errorf("run.max_concurrency = %d, want 7", loaded.Run.MaxConcurrency)
	}
}

func TestSaveCreatesParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	// Nested path that doesn't exist yet
	path := filepath.Join(tmpDir, "nested", "deep", "config.json")

	if err := Save(DefaultConfig(), path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("Config file was not created: %s", path)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg := &EngineConfig{
		Run: RunConfig{
			MaxConcurrency: 3,
			TaskTimeout:    "45s",
		},
		Pool: PoolConfig{
			DefaultSlots: 1,
			GlobalSlots:  6,
			Resources:    map[string]int{"llm": 2, "build": 4},
		},
		Retry: RetryConfig{
			MaxRetries: 2,
			Backoff: BackoffSpec{
				InitialInterval:     "1s",
				MaxInterval:         "30s",
				Multiplier:          1.5,
				RandomizationFactor: 0.25,
			},
		},
	}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Run.MaxConcurrency != 3 {
		t.Errorf("run.max_concurrency = %d, want 3", loaded.Run.MaxConcurrency)
	}
	if loaded.Run.TaskTimeout != "45s" {
		t.Errorf("run.task_timeout = %q, want 45s", loaded.Run.TaskTimeout)
	}
	if loaded.Pool.GlobalSlots != 6 {
		t.Errorf("pool.global_slots = %d, want 6", loaded.Pool.GlobalSlots)
	}
	if got := loaded.Pool.Resources["build"]; got != 4 {
		t.Errorf("pool.resources[build] = %d, want 4", got)
	}
	if loaded.Retry.Backoff.Multiplier != 1.5 {
		t.Errorf("retry.backoff.multiplier = %g, want 1.5", loaded.Retry.Backoff.Multiplier)
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	first := DefaultConfig()
	first.Retry.MaxRetries = 1
	if err := Save(first, path); err != nil {
		t.Fatalf("First save failed: %v", err)
	}

	second := DefaultConfig()
	second.Retry.MaxRetries = 9
	if err := Save(second, path); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	var loaded EngineConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}
	if loaded.Retry.MaxRetries != 9 {
		t.Errorf("retry.max_retries = %d, want 9", loaded.Retry.MaxRetries)
	}
}
