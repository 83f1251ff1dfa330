package store

import (
	"context"
	"fmt"
	"time"

	"github.com/claude-memory/memoryd/internal/model"
)

// ArchiveCandidates returns active knowledge items eligible to transition
// to archived: last_confirmed older than cutoff, never recalled, and with
// confidence below the configured floor.
func (s *Store) ArchiveCandidates(ctx context.Context, cutoff time.Time, confidenceBelow float64) ([]*model.Knowledge, error) {
	rows, err := s.db.QueryContext(ctx, knowledgeSelectColumns+`
		FROM knowledge
		WHERE status = ? AND last_confirmed < ? AND recall_count = 0 AND confidence < ?`,
		string(model.KnowledgeActive), cutoff, confidenceBelow,
	)
	if err != nil {
		return nil, fmt.Errorf("query archive candidates: %w", err)
	}
	defer rows.Close()
	return scanKnowledgeRows(rows)
}

// PurgeCandidates returns archived knowledge items older than cutoff.
func (s *Store) PurgeCandidates(ctx context.Context, cutoff time.Time) ([]*model.Knowledge, error) {
	rows, err := s.db.QueryContext(ctx, knowledgeSelectColumns+`
		FROM knowledge WHERE status = ? AND last_confirmed < ?`,
		string(model.KnowledgeArchived), cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query purge candidates: %w", err)
	}
	defer rows.Close()
	return scanKnowledgeRows(rows)
}

func scanKnowledgeRows(rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}) ([]*model.Knowledge, error) {
	var out []*model.Knowledge
	for rows.Next() {
		k, err := scanKnowledge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// ActiveKnowledgeForIndex returns every active knowledge row, used to
// rebuild the vector index from scratch if it and the durable store ever
// diverge.
func (s *Store) ActiveKnowledgeForIndex(ctx context.Context) ([]*model.Knowledge, error) {
	rows, err := s.db.QueryContext(ctx, knowledgeSelectColumns+` FROM knowledge WHERE status = ?`, string(model.KnowledgeActive))
	if err != nil {
		return nil, fmt.Errorf("query active knowledge: %w", err)
	}
	defer rows.Close()
	return scanKnowledgeRows(rows)
}
