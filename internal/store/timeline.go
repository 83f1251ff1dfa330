package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/claude-memory/memoryd/internal/model"
)

// AppendTimelineEvent inserts an append-only audit row.
func (s *Store) AppendTimelineEvent(ctx context.Context, tx *sql.Tx, e *model.TimelineEvent) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO timeline_events (session_id, ts, event, summary, details, project, files)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Timestamp, e.Event, e.Summary, e.Details, e.Project, encodeStrings(e.Files),
	)
	if err != nil {
		return 0, fmt.Errorf("insert timeline event: %w", err)
	}
	return res.LastInsertId()
}

// TimelineFilter narrows a timeline query by session, date range, or a free
// text query run against summary/details.
type TimelineFilter struct {
	SessionID string
	Project   string
	Since     time.Time
	Until     time.Time
	Query     string
	Limit     int
}

// QueryTimeline returns timeline events matching filter, oldest first
// within a session.
func (s *Store) QueryTimeline(ctx context.Context, filter TimelineFilter) ([]*model.TimelineEvent, error) {
	query := `SELECT id, session_id, ts, event, summary, details, project, files FROM timeline_events WHERE 1=1`
	var args []interface{}
	if filter.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	if filter.Project != "" {
		query += ` AND project = ?`
		args = append(args, filter.Project)
	}
	if !filter.Since.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, filter.Until)
	}
	if filter.Query != "" {
		query += ` AND (summary LIKE ? OR details LIKE ?)`
		like := "%" + filter.Query + "%"
		args = append(args, like, like)
	}
	query += ` ORDER BY ts ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	defer rows.Close()

	var out []*model.TimelineEvent
	for rows.Next() {
		var (
			e       model.TimelineEvent
			details sql.NullString
			files   string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Timestamp, &e.Event, &e.Summary, &details, &e.Project, &files); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		e.Details = details.String
		e.Files = decodeStrings(files)
		out = append(out, &e)
	}
	return out, rows.Err()
}
