// Package config loads process-level configuration from the environment,
// with optional .env support for local development. Per-folder options are
// not configured here; they arrive through the add-folder surface.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables.
const (
	EnvDBPath              = "COGNICORE_DB_PATH"
	EnvLogFile             = "COGNICORE_LOG_FILE"
	EnvBatchSize           = "COGNICORE_EMBED_BATCH_SIZE"
	EnvSimilarityThreshold = "COGNICORE_SIMILARITY_THRESHOLD"
)

// Defaults.
const (
	DefaultBatchSize           = 20
	DefaultSimilarityThreshold = 0.6
)

// Config is the process-level configuration.
type Config struct {
	DBPath              string
	LogFile             string
	EmbedBatchSize      int
	SimilarityThreshold float64
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present; a missing file is not
// an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:              os.Getenv(EnvDBPath),
		LogFile:             os.Getenv(EnvLogFile),
		EmbedBatchSize:      DefaultBatchSize,
		SimilarityThreshold: DefaultSimilarityThreshold,
	}

	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.DBPath = filepath.Join(home, ".cognicore", "cognicore.db")
	}

	if raw := os.Getenv(EnvBatchSize); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid %s: %q", EnvBatchSize, raw)
		}
		cfg.EmbedBatchSize = n
	}

	if raw := os.Getenv(EnvSimilarityThreshold); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < -1 || f > 1 {
			return nil, fmt.Errorf("invalid %s: %q", EnvSimilarityThreshold, raw)
		}
		cfg.SimilarityThreshold = f
	}

	return cfg, nil
}
