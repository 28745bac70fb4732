package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"

	BaselineFeed    = "feed"
	BaselineArchive = "archive"
)

type Config struct {
	Storage struct {
		Backend           string `yaml:"backend" toml:"backend"`
		DataDir           string `yaml:"data_dir" toml:"data_dir"`
		FeedsDocument     string `yaml:"feeds_document" toml:"feeds_document"`
		ArticlesDocument  string `yaml:"articles_document" toml:"articles_document"`
		SequencesDocument string `yaml:"sequences_document" toml:"sequences_document"`
		SQLitePath        string `yaml:"sqlite_path" toml:"sqlite_path"`
	} `yaml:"storage" toml:"storage"`

	Sync struct {
		Baseline     string        `yaml:"baseline" toml:"baseline"`
		Timeout      time.Duration `yaml:"timeout" toml:"timeout"`
		UserAgent    string        `yaml:"user_agent" toml:"user_agent"`
		Concurrency  int           `yaml:"concurrency" toml:"concurrency"`
		Interval     time.Duration `yaml:"interval" toml:"interval"`
		MaxBodyBytes int64         `yaml:"max_body_bytes" toml:"max_body_bytes"`
	} `yaml:"sync" toml:"sync"`

	Log struct {
		Level  string `yaml:"level" toml:"level"`
		Format string `yaml:"format" toml:"format"`
	} `yaml:"log" toml:"log"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Storage.Backend = BackendFile
	cfg.Storage.DataDir = "./data"
	cfg.Storage.FeedsDocument = "rss_db.json"
	cfg.Storage.ArticlesDocument = "article_db.json"
	cfg.Storage.SequencesDocument = "seq_db.json"
	cfg.Storage.SQLitePath = "./data/bytebite.db"
	cfg.Sync.Baseline = BaselineFeed
	cfg.Sync.Timeout = 30 * time.Second
	cfg.Sync.UserAgent = "ByteBite/1.0"
	cfg.Sync.Concurrency = 4
	cfg.Sync.Interval = 15 * time.Minute
	cfg.Sync.MaxBodyBytes = 10 << 20
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// LoadConfig reads a YAML or TOML config file (chosen by extension) on top of
// the defaults. Environment variables from a .env file in the working
// directory are loaded first and ${VAR} references in the file are expanded.
// A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot act on.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unknown storage backend %q (want %q or %q)", c.Storage.Backend, BackendFile, BackendSQLite)
	}
	switch c.Sync.Baseline {
	case BaselineFeed, BaselineArchive:
	default:
		return fmt.Errorf("unknown sync baseline %q (want %q or %q)", c.Sync.Baseline, BaselineFeed, BaselineArchive)
	}
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("sync concurrency must be at least 1, got %d", c.Sync.Concurrency)
	}
	if c.Sync.MaxBodyBytes < 1 {
		return fmt.Errorf("sync max_body_bytes must be positive, got %d", c.Sync.MaxBodyBytes)
	}
	return nil
}

// OpenBackend opens the backend selected by the config.
func (c *Config) OpenBackend() (Backend, error) {
	switch c.Storage.Backend {
	case BackendSQLite:
		return NewSQLiteBackend(c.Storage.SQLitePath)
	case BackendFile, "":
		return NewFileBackend(c.Storage.DataDir), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
}
