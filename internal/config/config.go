package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults match the reference behavior of the export downloader.
const (
	DefaultMaxWorkers = 2
	DefaultBatchSize  = 100

	DefaultAttemptTimeout = 30 * time.Second
	DefaultRetryBackoff   = 2 * time.Second
	DefaultMaxAttempts    = 3
)

// Config holds application settings.
type Config struct {
	ExportPath  string // path to the data-export JSON file
	WorkDir     string // directory media files are downloaded into
	ArchivePath string // path of the final zip artifact
	DBPath      string // DuckDB event log (":memory:" for in-memory)

	MaxWorkers int
	BatchSize  int

	AttemptTimeout time.Duration
	RetryBackoff   time.Duration
	MaxAttempts    int
}

// Default returns a Config populated with the standard defaults.
func Default() Config {
	return Config{
		ExportPath:     "schema.json",
		WorkDir:        "downloads",
		ArchivePath:    "videos.zip",
		DBPath:         "tokfetch_state.duckdb",
		MaxWorkers:     DefaultMaxWorkers,
		BatchSize:      DefaultBatchSize,
		AttemptTimeout: DefaultAttemptTimeout,
		RetryBackoff:   DefaultRetryBackoff,
		MaxAttempts:    DefaultMaxAttempts,
	}
}

// LoadEnv seeds process env vars from a .env file if one exists, then applies
// any TOKFETCH_* overrides to cfg. A missing .env file is not an error.
func LoadEnv(cfg *Config) error {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	if v := os.Getenv("TOKFETCH_EXPORT"); v != "" {
		cfg.ExportPath = v
	}
	if v := os.Getenv("TOKFETCH_WORKDIR"); v != "" {
		cfg.WorkDir = v
	}
	if v := os.Getenv("TOKFETCH_ARCHIVE"); v != "" {
		cfg.ArchivePath = v
	}
	if v := os.Getenv("TOKFETCH_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("TOKFETCH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse TOKFETCH_WORKERS %q: %w", v, err)
		}
		cfg.MaxWorkers = n
	}
	if v := os.Getenv("TOKFETCH_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse TOKFETCH_BATCH_SIZE %q: %w", v, err)
		}
		cfg.BatchSize = n
	}
	return nil
}

// Validate checks the settings the fetch phase depends on.
func (c Config) Validate() error {
	if c.ExportPath == "" {
		return fmt.Errorf("export path is required")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("work directory is required")
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max workers must be >= 1, got %d", c.MaxWorkers)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be >= 1, got %d", c.BatchSize)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1, got %d", c.MaxAttempts)
	}
	return nil
}
