package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/claude-memory/memoryd/internal/model"
)

// RecordObservation inserts a lightweight auto-capture row. Observations
// never participate in retrieval and carry no FTS entry.
func (s *Store) RecordObservation(ctx context.Context, tx *sql.Tx, o *model.Observation) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO observations (session_id, tool_name, observation_type, summary, files_affected, project, branch, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.SessionID, o.ToolName, o.ObservationType, o.Summary, encodeStrings(o.FilesAffected), o.Project, o.Branch, o.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert observation: %w", err)
	}
	return res.LastInsertId()
}

// PurgeStaleObservations deletes observations older than olderThan and
// returns the count removed; called once at startup per the observation
// TTL invariant.
func (s *Store) PurgeStaleObservations(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM observations WHERE created_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge stale observations: %w", err)
	}
	return res.RowsAffected()
}
