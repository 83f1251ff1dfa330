package timeline

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/claude-memory/memoryd/internal/model"
)

func TestComputeStatsCountsAndHealthScore(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	memoryDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(memoryDir, "memory.db"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write fixture file: %v", err)
	}

	stale := now.Add(-120 * 24 * time.Hour)
	var recalledID int64
	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		recalledID, err = s.CreateKnowledge(ctx, tx, &model.Knowledge{
			SessionID: "s1", Type: model.TypeFact, Content: "fresh and recalled",
			Project: "p", CreatedAt: now,
		})
		if err != nil {
			return err
		}
		_, err = s.CreateKnowledge(ctx, tx, &model.Knowledge{
			SessionID: "s1", Type: model.TypeFact, Content: "stale and never recalled",
			Project: "p", CreatedAt: stale,
		})
		return err
	}); err != nil {
		t.Fatalf("seed knowledge: %v", err)
	}
	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.BumpRecall(ctx, tx, []int64{recalledID}, now)
	}); err != nil {
		t.Fatalf("bump recall: %v", err)
	}

	stats, err := ComputeStats(ctx, s, memoryDir, "p", now)
	if err != nil {
		t.Fatalf("compute stats: %v", err)
	}
	if stats.ActiveCount != 2 {
		t.Errorf("expected 2 active items, got %d", stats.ActiveCount)
	}
	if stats.StaleCount != 1 {
		t.Errorf("expected 1 stale item, got %d", stats.StaleCount)
	}
	if stats.NeverRecalled != 1 {
		t.Errorf("expected 1 never-recalled item, got %d", stats.NeverRecalled)
	}
	expected := 1 - 0.5*0.5 - 0.3*0.5
	if diff := stats.HealthScore - expected; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected health score %.4f, got %.4f", expected, stats.HealthScore)
	}
	if stats.StorageBytes["memory.db"] == 0 {
		t.Errorf("expected nonzero size for memory.db, got %+v", stats.StorageBytes)
	}
}

func TestComputeStatsEmptyProjectHasPerfectHealth(t *testing.T) {
	s := setupTestStore(t)
	stats, err := ComputeStats(context.Background(), s, t.TempDir(), "empty-project", time.Now().UTC())
	if err != nil {
		t.Fatalf("compute stats: %v", err)
	}
	if stats.HealthScore != 1.0 {
		t.Errorf("expected perfect health score with no active items, got %.4f", stats.HealthScore)
	}
}
