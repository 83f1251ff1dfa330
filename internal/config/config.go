// Package config loads memoryd's runtime configuration from environment
// variables, with an optional YAML file overlay for the same keys.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved set of runtime knobs for one memoryd process.
type Config struct {
	MemoryDir                string
	EmbeddingModel           string
	EmbeddingURL             string
	DecayHalfLifeDays        float64
	ArchiveAfterDays         int
	PurgeAfterDays           int
	ObservationRetentionDays int
	DashboardPort            int
}

const (
	defaultDecayHalfLifeDays        = 90
	defaultArchiveAfterDays         = 180
	defaultPurgeAfterDays           = 365
	defaultObservationRetentionDays = 30
	defaultDashboardPort            = 37737
)

// Load resolves the engine's configuration. Precedence, highest first: the
// named environment variable, then $CLAUDE_MEMORY_DIR/config.yaml, then the
// built-in default — the same file-then-env layering BeadsLog applies to
// its own .beads/config.yaml, read in reverse since here the env var that
// names the memory directory must itself be resolved before the config
// file inside it can be located.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	memDir := os.Getenv("CLAUDE_MEMORY_DIR")
	if memDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		memDir = filepath.Join(home, ".claude-memory")
	}

	v.SetDefault("memory_dir", memDir)
	v.SetDefault("embedding_model", "")
	v.SetDefault("embedding_url", "http://localhost:11434/api/embeddings")
	v.SetDefault("decay_half_life", defaultDecayHalfLifeDays)
	v.SetDefault("archive_after_days", defaultArchiveAfterDays)
	v.SetDefault("purge_after_days", defaultPurgeAfterDays)
	v.SetDefault("observation_retention_days", defaultObservationRetentionDays)
	v.SetDefault("dashboard_port", defaultDashboardPort)

	configPath := filepath.Join(memDir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configPath, err)
		}
	}

	bindings := map[string]string{
		"memory_dir":                 "CLAUDE_MEMORY_DIR",
		"embedding_model":            "EMBEDDING_MODEL",
		"embedding_url":              "CLAUDE_MEMORY_EMBEDDING_URL",
		"decay_half_life":            "DECAY_HALF_LIFE",
		"archive_after_days":         "ARCHIVE_AFTER_DAYS",
		"purge_after_days":           "PURGE_AFTER_DAYS",
		"observation_retention_days": "OBSERVATION_RETENTION_DAYS",
		"dashboard_port":             "DASHBOARD_PORT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{
		MemoryDir:                v.GetString("memory_dir"),
		EmbeddingModel:           v.GetString("embedding_model"),
		EmbeddingURL:             v.GetString("embedding_url"),
		DecayHalfLifeDays:        v.GetFloat64("decay_half_life"),
		ArchiveAfterDays:         v.GetInt("archive_after_days"),
		PurgeAfterDays:           v.GetInt("purge_after_days"),
		ObservationRetentionDays: v.GetInt("observation_retention_days"),
		DashboardPort:            v.GetInt("dashboard_port"),
	}
	return cfg, nil
}

// DecayHalfLife returns the configured half-life as a time.Duration.
func (c *Config) DecayHalfLife() time.Duration {
	return time.Duration(c.DecayHalfLifeDays * float64(24*time.Hour))
}

// DBPath is the primary SQLite database file under MemoryDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.MemoryDir, "memory.db")
}

// LockPath is the cross-process advisory lock file guarding single-writer
// access to DBPath.
func (c *Config) LockPath() string {
	return filepath.Join(c.MemoryDir, "memory.db.lock")
}

// VectorIndexDir is the subdirectory holding the embedded vector index.
func (c *Config) VectorIndexDir() string {
	return filepath.Join(c.MemoryDir, "vector")
}

// ExtractQueueDir is the directory holding pending/done extraction files.
func (c *Config) ExtractQueueDir() string {
	return filepath.Join(c.MemoryDir, "queue")
}

// LogDir is the directory holding raw session logs.
func (c *Config) LogDir() string {
	return filepath.Join(c.MemoryDir, "logs")
}

// TranscriptDir is the directory holding session transcripts.
func (c *Config) TranscriptDir() string {
	return filepath.Join(c.MemoryDir, "transcripts")
}

// BackupDir is the directory holding store backups.
func (c *Config) BackupDir() string {
	return filepath.Join(c.MemoryDir, "backups")
}

// EnsureDirs creates every directory under MemoryDir the engine expects to
// exist before the store is opened.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{
		c.MemoryDir,
		c.VectorIndexDir(),
		c.ExtractQueueDir(),
		c.LogDir(),
		c.TranscriptDir(),
		c.BackupDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
