package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/claude-memory/memoryd/internal/model"
)

// OpenSession inserts a new session row in the open status, or is a no-op
// if a session with this id already exists (a caller resuming a known
// session id).
func (s *Store) OpenSession(ctx context.Context, tx *sql.Tx, sess *model.Session) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at, project, status, branch, log_count)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO NOTHING`,
		sess.ID, sess.StartedAt, sess.Project, string(model.SessionOpen), sess.Branch)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	return nil
}

// CloseSession marks a session closed and records its summary.
func (s *Store) CloseSession(ctx context.Context, tx *sql.Tx, id string, endedAt interface{}, summary string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE sessions SET status = ?, ended_at = ?, summary = ? WHERE id = ?`,
		string(model.SessionClosed), endedAt, summary, id)
	if err != nil {
		return fmt.Errorf("close session %s: %w", id, err)
	}
	return nil
}

// IncrementSessionLogCount bumps a session's log_count by one, called
// whenever a timeline event or knowledge item is recorded against it.
func (s *Store) IncrementSessionLogCount(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `UPDATE sessions SET log_count = log_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("bump session log count %s: %w", id, err)
	}
	return nil
}

// GetSession fetches a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, ended_at, project, status, summary, branch, log_count
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func scanSession(row rowScanner) (*model.Session, error) {
	var (
		sess    model.Session
		status  string
		summary sql.NullString
		branch  sql.NullString
	)
	err := row.Scan(&sess.ID, &sess.StartedAt, &sess.EndedAt, &sess.Project, &status, &summary, &branch, &sess.LogCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.Status = model.SessionStatus(status)
	sess.Summary = summary.String
	sess.Branch = branch.String
	return &sess, nil
}

// ListSessions returns sessions ordered most-recent-first, optionally
// limited, used by the timeline's sessions_ago/session_number browsing.
func (s *Store) ListSessions(ctx context.Context, project string, limit int) ([]*model.Session, error) {
	query := `SELECT id, started_at, ended_at, project, status, summary, branch, log_count FROM sessions WHERE 1=1`
	var args []interface{}
	if project != "" {
		query += ` AND project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
