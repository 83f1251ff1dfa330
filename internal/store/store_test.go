package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/claude-memory/memoryd/internal/model"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "memory.db")
	lockPath := filepath.Join(dir, "memory.db.lock")

	s, err := Open(context.Background(), dbPath, lockPath, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRunsMigrationsAndFTS(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.UnderlyingDB().Exec(`INSERT INTO knowledge_fts(knowledge_fts) VALUES('integrity-check')`); err != nil {
		t.Fatalf("expected fts5 index to be usable after Open(): %v", err)
	}
}

func TestCreateAndGetKnowledge(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var e error
		id, e = s.CreateKnowledge(ctx, tx, &model.Knowledge{
			SessionID:  "sess-1",
			Type:       model.TypeFact,
			Content:    "the build takes four minutes",
			Project:    "memoryd",
			Confidence: 1.0,
			Source:     "explicit",
			CreatedAt:  now,
		})
		return e
	})
	if err != nil {
		t.Fatalf("create knowledge: %v", err)
	}

	k, err := s.GetKnowledge(ctx, id)
	if err != nil {
		t.Fatalf("get knowledge: %v", err)
	}
	if k.Content != "the build takes four minutes" {
		t.Errorf("unexpected content: %q", k.Content)
	}
	if k.Status != model.KnowledgeActive {
		t.Errorf("expected active status, got %s", k.Status)
	}
}

func TestTransitionKnowledgeRejectsIllegalMove(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var e error
		id, e = s.CreateKnowledge(ctx, tx, &model.Knowledge{
			SessionID: "sess-1", Type: model.TypeFact, Content: "x", Project: "p", Confidence: 1, Source: "explicit", CreatedAt: now,
		})
		return e
	})
	if err != nil {
		t.Fatalf("create knowledge: %v", err)
	}

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.TransitionKnowledge(ctx, tx, id, model.KnowledgeArchived, nil)
	})
	if err != nil {
		t.Fatalf("active -> archived should be legal: %v", err)
	}

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.TransitionKnowledge(ctx, tx, id, model.KnowledgeActive, nil)
	})
	if err == nil {
		t.Fatalf("expected archived -> active to be rejected")
	}
}

func TestPurgeStaleObservations(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	old := time.Now().UTC().Add(-60 * 24 * time.Hour)

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.OpenSession(ctx, tx, &model.Session{ID: "sess-1", StartedAt: old, Project: "p"})
	})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		_, e := s.RecordObservation(ctx, tx, &model.Observation{
			SessionID: "sess-1", ToolName: "edit", ObservationType: "change", Summary: "did a thing", Project: "p", CreatedAt: old,
		})
		return e
	})
	if err != nil {
		t.Fatalf("record observation: %v", err)
	}

	n, err := s.PurgeStaleObservations(ctx, time.Now().UTC().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged observation, got %d", n)
	}
}

func TestCreateRelationIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var a, b int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var e error
		a, e = s.CreateKnowledge(ctx, tx, &model.Knowledge{SessionID: "s", Type: model.TypeFact, Content: "a", Project: "p", Confidence: 1, Source: "explicit", CreatedAt: now})
		if e != nil {
			return e
		}
		b, e = s.CreateKnowledge(ctx, tx, &model.Knowledge{SessionID: "s", Type: model.TypeFact, Content: "b", Project: "p", Confidence: 1, Source: "explicit", CreatedAt: now})
		return e
	})
	if err != nil {
		t.Fatalf("create knowledge: %v", err)
	}

	for i := 0; i < 2; i++ {
		err = s.WithTx(ctx, func(tx *sql.Tx) error {
			_, e := s.CreateRelation(ctx, tx, &model.Relation{FromID: a, ToID: b, Type: model.RelationRelated, CreatedAt: now})
			return e
		})
		if err != nil {
			t.Fatalf("create relation iteration %d: %v", i, err)
		}
	}

	rels, err := s.RelationsFor(ctx, a)
	if err != nil {
		t.Fatalf("relations for: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("expected exactly 1 relation after duplicate inserts, got %d", len(rels))
	}
}
