// Package config loads engine configuration from the environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all tunables for the memory engine.
type Config struct {
	// DBPath is the SQLite database location.
	DBPath string

	// SimilarityThreshold is the cosine similarity above which a write
	// is treated as a semantic duplicate of an existing active record.
	// One global value across all record types and owners.
	SimilarityThreshold float64

	// SearchLimit is the default maximum number of search results.
	SearchLimit int

	// EmbeddingDims is the expected embedding dimension.
	EmbeddingDims int

	// Workers is the size of the ingestion worker pool.
	Workers int

	// JobRetention is how long terminal jobs are kept before the
	// sweeper removes them.
	JobRetention time.Duration

	// JobTimeout bounds a single ingestion job run.
	JobTimeout time.Duration

	// LogLevel is a logrus level name.
	LogLevel string
}

// Load reads configuration from MEMCORE_* environment variables,
// falling back to defaults.
func Load() *Config {
	return &Config{
		DBPath:              envStr("MEMCORE_DB", defaultDBPath()),
		SimilarityThreshold: envFloat("MEMCORE_SIMILARITY_THRESHOLD", 0.95),
		SearchLimit:         envInt("MEMCORE_SEARCH_LIMIT", 50),
		EmbeddingDims:       envInt("MEMCORE_EMBED_DIMS", 768),
		Workers:             envInt("MEMCORE_WORKERS", 4),
		JobRetention:        envDuration("MEMCORE_JOB_RETENTION", time.Hour),
		JobTimeout:          envDuration("MEMCORE_JOB_TIMEOUT", 2*time.Minute),
		LogLevel:            envStr("MEMCORE_LOG_LEVEL", "info"),
	}
}

func defaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".memcore", "memcore.db")
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
