package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Storage.Backend != BackendFile {
		t.Errorf("default backend: got %q", cfg.Storage.Backend)
	}
	if cfg.Sync.Baseline != BaselineFeed {
		t.Errorf("default baseline: got %q", cfg.Sync.Baseline)
	}
	if cfg.Sync.Timeout != 30*time.Second {
		t.Errorf("default timeout: got %s", cfg.Sync.Timeout)
	}
	if cfg.Sync.MaxBodyBytes != 10<<20 {
		t.Errorf("default max body: got %d", cfg.Sync.MaxBodyBytes)
	}
	if cfg.Storage.SequencesDocument != "seq_db.json" {
		t.Errorf("default sequences document: got %q", cfg.Storage.SequencesDocument)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	t.Setenv("BYTEBITE_TEST_DIR", "/tmp/bytebite-data")
	path := writeConfig(t, "config.yaml", `
storage:
  backend: sqlite
  data_dir: ${BYTEBITE_TEST_DIR}
sync:
  baseline: archive
  timeout: 5s
  concurrency: 2
log:
  level: debug
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Errorf("backend: got %q", cfg.Storage.Backend)
	}
	if cfg.Storage.DataDir != "/tmp/bytebite-data" {
		t.Errorf("env expansion: got %q", cfg.Storage.DataDir)
	}
	if cfg.Sync.Baseline != BaselineArchive {
		t.Errorf("baseline: got %q", cfg.Sync.Baseline)
	}
	if cfg.Sync.Timeout != 5*time.Second {
		t.Errorf("timeout: got %s", cfg.Sync.Timeout)
	}
	if cfg.Sync.Concurrency != 2 {
		t.Errorf("concurrency: got %d", cfg.Sync.Concurrency)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Storage.FeedsDocument != "rss_db.json" {
		t.Errorf("feeds document default lost: got %q", cfg.Storage.FeedsDocument)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level: got %q", cfg.Log.Level)
	}
}

func TestLoadConfigTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[storage]
backend = "file"
data_dir = "./elsewhere"

[sync]
baseline = "feed"
timeout = "45s"
interval = "1h"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Storage.DataDir != "./elsewhere" {
		t.Errorf("data dir: got %q", cfg.Storage.DataDir)
	}
	if cfg.Sync.Timeout != 45*time.Second {
		t.Errorf("timeout: got %s", cfg.Sync.Timeout)
	}
	if cfg.Sync.Interval != time.Hour {
		t.Errorf("interval: got %s", cfg.Sync.Interval)
	}
}

func TestLoadConfigRejectsUnknownValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"backend", "storage:\n  backend: postgres\n"},
		{"baseline", "sync:\n  baseline: sometimes\n"},
		{"concurrency", "sync:\n  concurrency: 0\n"},
		{"body limit", "sync:\n  max_body_bytes: 0\n"},
		{"syntax", "storage: [unclosed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "config.yaml", tt.content)
			if _, err := LoadConfig(path); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestOpenBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()
	backend, err := cfg.OpenBackend()
	if err != nil {
		t.Fatalf("OpenBackend failed: %v", err)
	}
	if _, ok := backend.(*FileBackend); !ok {
		t.Errorf("expected *FileBackend, got %T", backend)
	}

	cfg.Storage.Backend = BackendSQLite
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "nested", "bytebite.db")
	backend, err = cfg.OpenBackend()
	if err != nil {
		t.Fatalf("OpenBackend sqlite failed: %v", err)
	}
	defer backend.Close()
	if _, ok := backend.(*SQLiteBackend); !ok {
		t.Errorf("expected *SQLiteBackend, got %T", backend)
	}
}
