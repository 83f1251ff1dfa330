package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CLAUDE_MEMORY_DIR", "EMBEDDING_MODEL", "CLAUDE_MEMORY_EMBEDDING_URL",
		"DECAY_HALF_LIFE", "ARCHIVE_AFTER_DAYS", "PURGE_AFTER_DAYS",
		"OBSERVATION_RETENTION_DAYS", "DASHBOARD_PORT",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MemoryDir != filepath.Join(home, ".claude-memory") {
		t.Errorf("unexpected default memory dir: %q", cfg.MemoryDir)
	}
	if cfg.DecayHalfLifeDays != defaultDecayHalfLifeDays {
		t.Errorf("unexpected default decay half life: %v", cfg.DecayHalfLifeDays)
	}
	if cfg.ArchiveAfterDays != defaultArchiveAfterDays {
		t.Errorf("unexpected default archive-after-days: %v", cfg.ArchiveAfterDays)
	}
	if cfg.PurgeAfterDays != defaultPurgeAfterDays {
		t.Errorf("unexpected default purge-after-days: %v", cfg.PurgeAfterDays)
	}
	if cfg.ObservationRetentionDays != defaultObservationRetentionDays {
		t.Errorf("unexpected default observation retention: %v", cfg.ObservationRetentionDays)
	}
	if cfg.DashboardPort != defaultDashboardPort {
		t.Errorf("unexpected default dashboard port: %v", cfg.DashboardPort)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("CLAUDE_MEMORY_DIR", dir)
	t.Setenv("EMBEDDING_MODEL", "nomic-embed-text")
	t.Setenv("DASHBOARD_PORT", "9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MemoryDir != dir {
		t.Errorf("expected memory dir %q, got %q", dir, cfg.MemoryDir)
	}
	if cfg.EmbeddingModel != "nomic-embed-text" {
		t.Errorf("expected embedding model override, got %q", cfg.EmbeddingModel)
	}
	if cfg.DashboardPort != 9000 {
		t.Errorf("expected dashboard port override, got %d", cfg.DashboardPort)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := &Config{MemoryDir: "/tmp/mem"}
	if cfg.DBPath() != filepath.Join("/tmp/mem", "memory.db") {
		t.Errorf("unexpected db path: %q", cfg.DBPath())
	}
	if cfg.LockPath() != filepath.Join("/tmp/mem", "memory.db.lock") {
		t.Errorf("unexpected lock path: %q", cfg.LockPath())
	}
}

func TestEnsureDirsCreatesTree(t *testing.T) {
	clearEnv(t)
	dir := filepath.Join(t.TempDir(), "mem")
	cfg := &Config{MemoryDir: dir}
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs() error: %v", err)
	}
	for _, sub := range []string{"vector", "queue", "logs", "transcripts", "backups"} {
		if _, err := os.Stat(filepath.Join(dir, sub)); err != nil {
			t.Errorf("expected directory %s to exist: %v", sub, err)
		}
	}
}
