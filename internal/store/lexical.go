package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/claude-memory/memoryd/internal/model"
)

// LexicalHit is one BM25-ranked match from the lexical tier.
type LexicalHit struct {
	Knowledge *model.Knowledge
	Score     float64
}

// queryer is the subset of *sql.DB and *sql.Tx that a read needs, letting
// the same query run against the pool or against an in-flight transaction
// without checking out a second connection from the pool.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// LexicalSearch runs query against knowledge_fts, joining back to active
// knowledge rows and ranking by BM25 (lower is better, matching FTS5's own
// convention — callers invert the sign before merging with the other
// tiers' higher-is-better scores).
func (s *Store) LexicalSearch(ctx context.Context, query string, project string, limit int) ([]LexicalHit, error) {
	return lexicalSearch(ctx, s.db, query, project, "", limit)
}

// DuplicateCandidatesTx runs the write-time dedup probe's lexical query
// against tx instead of the pool, so it never competes with the
// transaction holding the store's single connection, and restricts
// candidates to itemType in SQL so a same-type near-duplicate ranked
// below unrelated-type noise isn't crowded out of the top-N pool.
func (s *Store) DuplicateCandidatesTx(ctx context.Context, tx *sql.Tx, query, itemType, project string, limit int) ([]LexicalHit, error) {
	return lexicalSearch(ctx, tx, query, project, itemType, limit)
}

func lexicalSearch(ctx context.Context, q queryer, query, project, typeFilter string, limit int) ([]LexicalHit, error) {
	matchQuery := query
	if !strings.ContainsAny(matchQuery, `"*:()`) {
		matchQuery += "*"
	}

	sqlQuery := knowledgeSelectColumns + `, bm25(knowledge_fts) AS score
		FROM knowledge
		JOIN knowledge_fts ON knowledge_fts.rowid = knowledge.id
		WHERE knowledge_fts MATCH ? AND knowledge.status = ?`
	args := []interface{}{matchQuery, string(model.KnowledgeActive)}
	if typeFilter != "" {
		sqlQuery += ` AND knowledge.type = ?`
		args = append(args, typeFilter)
	}
	if project != "" {
		sqlQuery += ` AND knowledge.project = ?`
		args = append(args, project)
	}
	sqlQuery += ` ORDER BY score LIMIT ?`
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var out []LexicalHit
	for rows.Next() {
		k, score, err := scanKnowledgeWithScore(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, LexicalHit{Knowledge: k, Score: score})
	}
	return out, rows.Err()
}

func scanKnowledgeWithScore(rows interface {
	Scan(dest ...interface{}) error
}) (*model.Knowledge, float64, error) {
	var (
		k        model.Knowledge
		typ      string
		status   string
		tags     string
		ctxField stringOrNil
		branch   stringOrNil
		score    float64
	)
	err := rows.Scan(&k.ID, &k.SessionID, &typ, &k.Content, &ctxField, &k.Project, &tags, &status,
		&k.SupersededBy, &k.Confidence, &k.Source, &k.CreatedAt, &k.LastConfirmed, &k.RecallCount,
		&k.LastRecalled, &branch, &score,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("scan lexical hit: %w", err)
	}
	k.Type = model.KnowledgeType(typ)
	k.Status = model.KnowledgeStatus(status)
	k.Tags = decodeStrings(tags)
	k.Context = string(ctxField)
	k.Branch = string(branch)
	return &k, score, nil
}

// stringOrNil scans a nullable TEXT column directly into a Go string.
type stringOrNil string

func (s *stringOrNil) Scan(src interface{}) error {
	if src == nil {
		*s = ""
		return nil
	}
	switch v := src.(type) {
	case string:
		*s = stringOrNil(v)
	case []byte:
		*s = stringOrNil(v)
	default:
		return fmt.Errorf("unsupported scan type %T for stringOrNil", src)
	}
	return nil
}

// FuzzyCandidates returns up to limit active knowledge rows for a project,
// the raw candidate pool the fuzzy retrieval tier scores client-side with
// similarity.RatioQuick since SQLite has no native sequence-ratio function.
func (s *Store) FuzzyCandidates(ctx context.Context, project string, limit int) ([]*model.Knowledge, error) {
	query := knowledgeSelectColumns + ` FROM knowledge WHERE status = ?`
	args := []interface{}{string(model.KnowledgeActive)}
	if project != "" {
		query += ` AND project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY last_confirmed DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fuzzy candidates: %w", err)
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
