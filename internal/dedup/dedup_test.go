package dedup

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/claude-memory/memoryd/internal/model"
	"github.com/claude-memory/memoryd/internal/store"
)

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

func insertKnowledge(t *testing.T, s *store.Store, content, project string, at time.Time) int64 {
	t.Helper()
	ctx := context.Background()
	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var e error
		id, e = s.CreateKnowledge(ctx, tx, &model.Knowledge{
			SessionID: "sess-1", Type: model.TypeFact, Content: content, Project: project,
			Confidence: 1.0, Source: "explicit", CreatedAt: at,
		})
		return e
	})
	if err != nil {
		t.Fatalf("insert knowledge: %v", err)
	}
	return id
}

func TestProbeFindsNearDuplicateAndConfirms(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	id := insertKnowledge(t, s, "the nightly build takes about four minutes to finish", "memoryd", now.Add(-time.Hour))

	var result ProbeResult
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var e error
		result, e = Probe(ctx, s, tx, "the nightly build takes about four minutes to finish", string(model.TypeFact), "memoryd", now)
		return e
	})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !result.Duplicate || result.ExistingID != id {
		t.Fatalf("expected duplicate pointing at %d, got %+v", id, result)
	}

	k, err := s.GetKnowledge(ctx, id)
	if err != nil {
		t.Fatalf("get knowledge: %v", err)
	}
	if !k.LastConfirmed.Equal(now) {
		t.Errorf("expected last_confirmed refreshed to %v, got %v", now, k.LastConfirmed)
	}
}

func TestProbeAllowsDistinctContent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	insertKnowledge(t, s, "the deploy pipeline runs on every merge to main", "memoryd", now)

	var result ProbeResult
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var e error
		result, e = Probe(ctx, s, tx, "users prefer dark mode by a wide margin", string(model.TypeFact), "memoryd", now)
		return e
	})
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if result.Duplicate {
		t.Fatalf("expected no duplicate for unrelated content, got %+v", result)
	}
}

func TestPreviewGroupsByJaccardAndKeepsLongest(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	short := insertKnowledge(t, s, "use TLS 1.3 everywhere", "sec", now)
	long := insertKnowledge(t, s, "TLS 1.3 should be used everywhere across all services", "sec", now)
	insertKnowledge(t, s, "rotate API keys every ninety days", "sec", now)

	groups, err := Preview(ctx, s, "sec", 0.5)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected exactly 1 group, got %d", len(groups))
	}
	g := groups[0]
	if g.Kept.ID != long {
		t.Errorf("expected kept item to be the longer one (%d), got %d", long, g.Kept.ID)
	}
	if len(g.Merged) != 1 || g.Merged[0].ID != short {
		t.Errorf("expected merged set to contain only %d, got %+v", short, g.Merged)
	}
}

func TestSweepDryRunDoesNotMutate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := insertKnowledge(t, s, "restart the worker pool after a deploy", "ops", now)
	b := insertKnowledge(t, s, "restart the worker pool after every deploy", "ops", now)

	groups, err := Sweep(ctx, s, nil, nil, "ops", 0.5, true, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}

	for _, id := range []int64{a, b} {
		k, err := s.GetKnowledge(ctx, id)
		if err != nil {
			t.Fatalf("get knowledge %d: %v", id, err)
		}
		if k.Status != model.KnowledgeActive {
			t.Errorf("dry run must not mutate status, item %d is %s", id, k.Status)
		}
	}
}

func TestSweepAppliesConsolidation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := insertKnowledge(t, s, "restart the worker pool after a deploy", "ops", now)
	b := insertKnowledge(t, s, "restart the worker pool after every single deploy we do", "ops", now)

	groups, err := Sweep(ctx, s, nil, nil, "ops", 0.5, false, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	kept := groups[0].Kept.ID
	var mergedID int64
	if kept == a {
		mergedID = b
	} else {
		mergedID = a
	}

	merged, err := s.GetKnowledge(ctx, mergedID)
	if err != nil {
		t.Fatalf("get merged item: %v", err)
	}
	if merged.Status != model.KnowledgeConsolidated {
		t.Errorf("expected merged item consolidated, got %s", merged.Status)
	}
	if merged.SupersededBy == nil || *merged.SupersededBy != kept {
		t.Errorf("expected superseded_by=%d, got %+v", kept, merged.SupersededBy)
	}
}

type fakeMerger struct {
	result string
	err    error
	calls  [][]string
}

func (f *fakeMerger) Merge(ctx context.Context, contents []string) (string, error) {
	f.calls = append(f.calls, contents)
	if f.err != nil {
		return "", f.err
	}
	return f.result, nil
}

func TestSweepUsesMergerForKeptContent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	insertKnowledge(t, s, "restart the worker pool after a deploy", "ops", now)
	insertKnowledge(t, s, "restart the worker pool after every single deploy we do", "ops", now)

	merger := &fakeMerger{result: "restart the worker pool after every deploy"}
	groups, err := Sweep(ctx, s, nil, merger, "ops", 0.5, false, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if len(merger.calls) != 1 {
		t.Fatalf("expected merger called once, got %d calls", len(merger.calls))
	}

	kept, err := s.GetKnowledge(ctx, groups[0].Kept.ID)
	if err != nil {
		t.Fatalf("get kept item: %v", err)
	}
	if kept.Content != merger.result {
		t.Errorf("expected kept content replaced with merged statement, got %q", kept.Content)
	}
}

func TestSweepFallsBackWhenMergerFails(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := insertKnowledge(t, s, "restart the worker pool after a deploy", "ops", now)
	b := insertKnowledge(t, s, "restart the worker pool after every single deploy we do", "ops", now)

	merger := &fakeMerger{err: errors.New("api unavailable")}
	groups, err := Sweep(ctx, s, nil, merger, "ops", 0.5, false, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	kept := groups[0].Kept.ID
	var original string
	if kept == a {
		original = "restart the worker pool after a deploy"
	} else if kept == b {
		original = "restart the worker pool after every single deploy we do"
	}

	k, err := s.GetKnowledge(ctx, kept)
	if err != nil {
		t.Fatalf("get kept item: %v", err)
	}
	if k.Content != original {
		t.Errorf("expected content unchanged on merge failure, got %q", k.Content)
	}
}
