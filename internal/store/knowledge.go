package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/claude-memory/memoryd/internal/model"
)

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = errors.New("store: not found")

// CreateKnowledge inserts a new active knowledge item and its FTS entry
// (via trigger) inside tx, returning the generated id.
func (s *Store) CreateKnowledge(ctx context.Context, tx *sql.Tx, k *model.Knowledge) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO knowledge (session_id, type, content, context, project, tags, status,
			confidence, source, created_at, last_confirmed, recall_count, branch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		k.SessionID, string(k.Type), k.Content, k.Context, k.Project, encodeStrings(k.Tags),
		string(model.KnowledgeActive), k.Confidence, k.Source, k.CreatedAt, k.CreatedAt, k.Branch,
	)
	if err != nil {
		return 0, fmt.Errorf("insert knowledge: %w", err)
	}
	return res.LastInsertId()
}

// GetKnowledge fetches one knowledge item by id regardless of status.
func (s *Store) GetKnowledge(ctx context.Context, id int64) (*model.Knowledge, error) {
	row := s.db.QueryRowContext(ctx, knowledgeSelectColumns+` FROM knowledge WHERE id = ?`, id)
	return scanKnowledge(row)
}

const knowledgeSelectColumns = `SELECT id, session_id, type, content, context, project, tags, status,
	superseded_by, confidence, source, created_at, last_confirmed, recall_count, last_recalled, branch`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanKnowledge(row rowScanner) (*model.Knowledge, error) {
	var (
		k       model.Knowledge
		typ     string
		status  string
		tags    string
		context sql.NullString
		branch  sql.NullString
	)
	err := row.Scan(&k.ID, &k.SessionID, &typ, &k.Content, &context, &k.Project, &tags, &status,
		&k.SupersededBy, &k.Confidence, &k.Source, &k.CreatedAt, &k.LastConfirmed, &k.RecallCount,
		&k.LastRecalled, &branch,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan knowledge: %w", err)
	}
	k.Type = model.KnowledgeType(typ)
	k.Status = model.KnowledgeStatus(status)
	k.Tags = decodeStrings(tags)
	k.Context = context.String
	k.Branch = branch.String
	return &k, nil
}

// KnowledgeFilter narrows ListKnowledge to a project/type/branch/status
// subset; empty fields are wildcards.
type KnowledgeFilter struct {
	Project string
	Type    model.KnowledgeType
	Branch  string
	Status  model.KnowledgeStatus
	Limit   int
}

// ListKnowledge returns knowledge rows matching filter, most recent first.
func (s *Store) ListKnowledge(ctx context.Context, filter KnowledgeFilter) ([]*model.Knowledge, error) {
	query := knowledgeSelectColumns + ` FROM knowledge WHERE 1=1`
	var args []interface{}
	if filter.Project != "" {
		query += ` AND project = ?`
		args = append(args, filter.Project)
	}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.Branch != "" {
		query += ` AND branch = ?`
		args = append(args, filter.Branch)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	} else {
		query += ` AND status = ?`
		args = append(args, string(model.KnowledgeActive))
	}
	query += ` ORDER BY last_confirmed DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list knowledge: %w", err)
	}
	defer rows.Close()

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

// TransitionKnowledge moves a knowledge item to a new status, rejecting the
// call outright if the transition is not legal (invariant I1).
func (s *Store) TransitionKnowledge(ctx context.Context, tx *sql.Tx, id int64, to model.KnowledgeStatus, supersededBy *int64) error {
	var current string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM knowledge WHERE id = ?`, id).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("read current status: %w", err)
	}
	from := model.KnowledgeStatus(current)
	if !from.CanTransition(to) {
		return fmt.Errorf("illegal knowledge transition %s -> %s for id %d", from, to, id)
	}
	_, err := tx.ExecContext(ctx, `UPDATE knowledge SET status = ?, superseded_by = ? WHERE id = ?`,
		string(to), supersededBy, id)
	if err != nil {
		return fmt.Errorf("update knowledge status: %w", err)
	}
	return nil
}

// BumpRecall increments recall_count and sets last_recalled on every id in
// ids, called once per retrieval result set under the same write
// transaction that produced the result.
func (s *Store) BumpRecall(ctx context.Context, tx *sql.Tx, ids []int64, at interface{}) error {
	stmt, err := tx.PrepareContext(ctx, `UPDATE knowledge SET recall_count = recall_count + 1, last_recalled = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare recall bump: %w", err)
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, at, id); err != nil {
			return fmt.Errorf("bump recall for id %d: %w", id, err)
		}
	}
	return nil
}

// ConfirmKnowledge updates last_confirmed to at, used when a write-time
// dedup probe finds an existing near-duplicate instead of inserting a new
// row.
func (s *Store) ConfirmKnowledge(ctx context.Context, tx *sql.Tx, id int64, at interface{}) error {
	_, err := tx.ExecContext(ctx, `UPDATE knowledge SET last_confirmed = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("confirm knowledge %d: %w", id, err)
	}
	return nil
}

// UpdateKnowledgeContent overwrites an item's content, re-confirming it in
// the same statement; the knowledge_fts trigger keeps the lexical index in
// step. Used by the consolidation sweep to replace the kept item's content
// with a merged summary.
func (s *Store) UpdateKnowledgeContent(ctx context.Context, tx *sql.Tx, id int64, content string, at interface{}) error {
	_, err := tx.ExecContext(ctx, `UPDATE knowledge SET content = ?, last_confirmed = ? WHERE id = ?`, content, at, id)
	if err != nil {
		return fmt.Errorf("update knowledge content %d: %w", id, err)
	}
	return nil
}

// CreateRelation inserts a typed edge between two existing knowledge items.
// The UNIQUE(from_id, to_id, type) constraint makes a duplicate call a
// no-op success rather than an error.
func (s *Store) CreateRelation(ctx context.Context, tx *sql.Tx, r *model.Relation) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO relations (from_id, to_id, type, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(from_id, to_id, type) DO NOTHING`,
		r.FromID, r.ToID, string(r.Type), r.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert relation: %w", err)
	}
	return res.LastInsertId()
}

// RelationsFor returns every relation where id is either endpoint, used by
// the graph retrieval tier to fetch one-hop neighbors.
func (s *Store) RelationsFor(ctx context.Context, id int64) ([]*model.Relation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_id, to_id, type, created_at FROM relations
		WHERE from_id = ? OR to_id = ?`, id, id)
	if err != nil {
		return nil, fmt.Errorf("query relations: %w", err)
	}
	defer rows.Close()

	var out []*model.Relation
	for rows.Next() {
		var rel model.Relation
		var typ string
		if err := rows.Scan(&rel.ID, &rel.FromID, &rel.ToID, &typ, &rel.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		rel.Type = model.RelationType(typ)
		out = append(out, &rel)
	}
	return out, rows.Err()
}
