package lifecycle

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/claude-memory/memoryd/internal/model"
	"github.com/claude-memory/memoryd/internal/store"
)

func TestDecayIdentityAtZeroDays(t *testing.T) {
	now := time.Now().UTC()
	got := Decay(now, 90*24*time.Hour, now)
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("expected decay 1.0 at zero elapsed days, got %v", got)
	}
}

func TestDecayHalvesAtHalfLife(t *testing.T) {
	now := time.Now().UTC()
	halfLife := 90 * 24 * time.Hour
	lastConfirmed := now.Add(-halfLife)
	got := Decay(lastConfirmed, halfLife, now)
	if math.Abs(got-0.5) > 1e-6 {
		t.Errorf("expected decay ~0.5 at exactly one half-life, got %v", got)
	}
}

func TestDecayNeverBelowFloor(t *testing.T) {
	now := time.Now().UTC()
	halfLife := 90 * 24 * time.Hour
	lastConfirmed := now.Add(-20 * halfLife)
	got := Decay(lastConfirmed, halfLife, now)
	if got < minDecay {
		t.Errorf("decay %v fell below floor %v", got, minDecay)
	}
}

func TestDecayUnsetTimestampReturnsHalf(t *testing.T) {
	got := Decay(time.Time{}, 90*24*time.Hour, time.Now())
	if got != 0.5 {
		t.Errorf("expected 0.5 for unset last_confirmed, got %v", got)
	}
}

func TestRecallBoostCapsAtPointThree(t *testing.T) {
	if got := RecallBoost(100); got != 0.3 {
		t.Errorf("expected recall boost capped at 0.3, got %v", got)
	}
	if got := RecallBoost(2); math.Abs(got-0.1) > 1e-9 {
		t.Errorf("expected 0.1 for recall_count=2, got %v", got)
	}
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(dir, "memory.db"), filepath.Join(dir, "memory.db.lock"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestApplyRetentionDryRunDoesNotMutate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	old := now.Add(-200 * 24 * time.Hour)

	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var e error
		id, e = s.CreateKnowledge(ctx, tx, &model.Knowledge{
			SessionID: "s", Type: model.TypeFact, Content: "stale item", Project: "p",
			Confidence: 0.5, Source: "explicit", CreatedAt: old,
		})
		return e
	})
	if err != nil {
		t.Fatalf("create knowledge: %v", err)
	}
	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.ConfirmKnowledge(ctx, tx, id, old)
	}); err != nil {
		t.Fatalf("backdate confirmation: %v", err)
	}

	result, err := ApplyRetention(ctx, s, nil, 180*24*time.Hour, 365*24*time.Hour, 0.8, true, now)
	if err != nil {
		t.Fatalf("apply retention: %v", err)
	}
	if len(result.Archived) != 1 {
		t.Fatalf("expected 1 archive candidate, got %d", len(result.Archived))
	}

	k, err := s.GetKnowledge(ctx, id)
	if err != nil {
		t.Fatalf("get knowledge: %v", err)
	}
	if k.Status != model.KnowledgeActive {
		t.Errorf("dry run must not mutate status, got %s", k.Status)
	}
}

func TestApplyRetentionArchivesAndPurges(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	veryOld := now.Add(-400 * 24 * time.Hour)

	var archivedID int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var e error
		archivedID, e = s.CreateKnowledge(ctx, tx, &model.Knowledge{
			SessionID: "s", Type: model.TypeFact, Content: "ancient fact", Project: "p",
			Confidence: 0.5, Source: "explicit", CreatedAt: veryOld,
		})
		return e
	})
	if err != nil {
		t.Fatalf("create knowledge: %v", err)
	}
	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.ConfirmKnowledge(ctx, tx, archivedID, veryOld)
	}); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	result, err := ApplyRetention(ctx, s, nil, 180*24*time.Hour, 365*24*time.Hour, 0.8, false, now)
	if err != nil {
		t.Fatalf("apply retention: %v", err)
	}
	if len(result.Archived) != 1 {
		t.Fatalf("expected 1 archived, got %d", len(result.Archived))
	}

	k, err := s.GetKnowledge(ctx, archivedID)
	if err != nil {
		t.Fatalf("get knowledge: %v", err)
	}
	if k.Status != model.KnowledgeArchived {
		t.Errorf("expected archived, got %s", k.Status)
	}

	result2, err := ApplyRetention(ctx, s, nil, 180*24*time.Hour, 365*24*time.Hour, 0.8, false, now)
	if err != nil {
		t.Fatalf("apply retention second pass: %v", err)
	}
	if len(result2.Purged) != 1 {
		t.Fatalf("expected the now-archived item to purge on the next sweep, got %d", len(result2.Purged))
	}
}

func TestSweepObservationsRemovesStaleRows(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	old := now.Add(-60 * 24 * time.Hour)

	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.OpenSession(ctx, tx, &model.Session{ID: "sess-1", StartedAt: old, Project: "p"})
	}); err != nil {
		t.Fatalf("open session: %v", err)
	}
	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		_, e := s.RecordObservation(ctx, tx, &model.Observation{
			SessionID: "sess-1", ToolName: "edit", ObservationType: "change", Summary: "did a thing", Project: "p", CreatedAt: old,
		})
		return e
	}); err != nil {
		t.Fatalf("record observation: %v", err)
	}

	n, err := SweepObservations(ctx, s, 30*24*time.Hour, now)
	if err != nil {
		t.Fatalf("sweep observations: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 swept observation, got %d", n)
	}
}
