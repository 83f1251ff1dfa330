package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/claude-memory/memoryd/internal/model"
)

// CreateError inserts a new open error record.
func (s *Store) CreateError(ctx context.Context, tx *sql.Tx, e *model.Error) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO errors (session_id, category, severity, description, context, fix, project, tags, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, string(e.Category), e.Severity, e.Description, e.Context, e.Fix, e.Project, encodeStrings(e.Tags),
		string(model.ErrorOpen), e.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert error: %w", err)
	}
	return res.LastInsertId()
}

// RecentErrorsByCategory returns open/resolved errors in category within
// the given project created after since, used by pattern detection (three
// same-category errors in 30 days triggers an insight candidate).
func (s *Store) RecentErrorsByCategory(ctx context.Context, category model.ErrorCategory, project string, since time.Time) ([]*model.Error, error) {
	query := `SELECT id, session_id, category, severity, description, context, fix, project, tags, status,
		resolved_at, insight_id, created_at FROM errors WHERE category = ? AND created_at >= ?`
	args := []interface{}{string(category), since}
	if project != "" {
		query += ` AND project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent errors: %w", err)
	}
	defer rows.Close()

	var out []*model.Error
	for rows.Next() {
		e, err := scanError(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanError(row rowScanner) (*model.Error, error) {
	var (
		e          model.Error
		category   string
		status     string
		tags       string
		contextVal sql.NullString
		fix        sql.NullString
	)
	err := row.Scan(&e.ID, &e.SessionID, &category, &e.Severity, &e.Description, &contextVal, &fix,
		&e.Project, &tags, &status, &e.ResolvedAt, &e.InsightID, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan error: %w", err)
	}
	e.Category = model.ErrorCategory(category)
	e.Status = model.ErrorStatus(status)
	e.Tags = decodeStrings(tags)
	e.Context = contextVal.String
	e.Fix = fix.String
	return &e, nil
}

// MarkErrorsInsightExtracted updates a batch of error ids to the
// insight_extracted status and stamps them with the insight they produced.
func (s *Store) MarkErrorsInsightExtracted(ctx context.Context, tx *sql.Tx, ids []int64, insightID int64) error {
	stmt, err := tx.PrepareContext(ctx, `UPDATE errors SET status = ?, insight_id = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare error update: %w", err)
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, string(model.ErrorInsightExtracted), insightID, id); err != nil {
			return fmt.Errorf("mark error %d insight-extracted: %w", id, err)
		}
	}
	return nil
}

// CreateInsight inserts a new active insight.
func (s *Store) CreateInsight(ctx context.Context, tx *sql.Tx, in *model.Insight) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO insights (session_id, content, context, category, importance, confidence,
			source_error_ids, project, tags, status, fire_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		in.SessionID, in.Content, in.Context, string(in.Category), in.Importance, in.Confidence,
		encodeInt64s(in.SourceErrorIDs), in.Project, encodeStrings(in.Tags), string(model.InsightActive),
		in.CreatedAt, in.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert insight: %w", err)
	}
	return res.LastInsertId()
}

// GetInsight fetches one insight by id.
func (s *Store) GetInsight(ctx context.Context, id int64) (*model.Insight, error) {
	row := s.db.QueryRowContext(ctx, insightSelectColumns+` FROM insights WHERE id = ?`, id)
	return scanInsight(row)
}

const insightSelectColumns = `SELECT id, session_id, content, context, category, importance, confidence,
	source_error_ids, project, tags, status, promoted_to_rule_id, fire_count, created_at, updated_at`

func scanInsight(row rowScanner) (*model.Insight, error) {
	var (
		in             model.Insight
		category       string
		status         string
		sourceErrorIDs string
		tags           string
		contextVal     sql.NullString
	)
	err := row.Scan(&in.ID, &in.SessionID, &in.Content, &contextVal, &category, &in.Importance, &in.Confidence,
		&sourceErrorIDs, &in.Project, &tags, &status, &in.PromotedToRuleID, &in.FireCount, &in.CreatedAt, &in.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan insight: %w", err)
	}
	in.Category = model.ErrorCategory(category)
	in.Status = model.InsightStatus(status)
	in.SourceErrorIDs = decodeInt64s(sourceErrorIDs)
	in.Tags = decodeStrings(tags)
	in.Context = contextVal.String
	return &in, nil
}

// ListActiveInsights returns every active insight, optionally scoped to a
// project, used by the consolidation/voting pass to find a near-duplicate
// before inserting a new one.
func (s *Store) ListActiveInsights(ctx context.Context, project string) ([]*model.Insight, error) {
	query := insightSelectColumns + ` FROM insights WHERE status = ?`
	args := []interface{}{string(model.InsightActive)}
	if project != "" {
		query += ` AND project = ?`
		args = append(args, project)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active insights: %w", err)
	}
	defer rows.Close()

	var out []*model.Insight
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// AdjustInsightImportance applies delta to an insight's importance and
// archives it if the result is <= 0 (invariant from the data model).
func (s *Store) AdjustInsightImportance(ctx context.Context, tx *sql.Tx, id int64, delta int, at time.Time) error {
	var importance int
	if err := tx.QueryRowContext(ctx, `SELECT importance FROM insights WHERE id = ?`, id).Scan(&importance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("read insight importance: %w", err)
	}
	importance += delta
	status := string(model.InsightActive)
	if importance <= 0 {
		status = string(model.InsightArchived)
	}
	_, err := tx.ExecContext(ctx, `UPDATE insights SET importance = ?, status = ?, updated_at = ? WHERE id = ?`,
		importance, status, at, id)
	if err != nil {
		return fmt.Errorf("update insight importance: %w", err)
	}
	return nil
}

// PromoteInsight marks an insight promoted and links it to the rule it
// produced.
func (s *Store) PromoteInsight(ctx context.Context, tx *sql.Tx, id, ruleID int64, at time.Time) error {
	var status string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM insights WHERE id = ?`, id).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("read insight status: %w", err)
	}
	if !model.InsightStatus(status).CanTransition(model.InsightPromoted) {
		return fmt.Errorf("insight %d cannot be promoted from status %s", id, status)
	}
	_, err := tx.ExecContext(ctx, `UPDATE insights SET status = ?, promoted_to_rule_id = ?, updated_at = ? WHERE id = ?`,
		string(model.InsightPromoted), ruleID, at, id)
	if err != nil {
		return fmt.Errorf("promote insight: %w", err)
	}
	return nil
}

// BumpInsightFireCount increments an insight's fire_count, called when a
// fuzzy match folds a new observation into it instead of inserting a
// duplicate.
func (s *Store) BumpInsightFireCount(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE insights SET fire_count = fire_count + 1, updated_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("bump insight fire count: %w", err)
	}
	return nil
}

// CreateRule inserts a new active rule, either promoted from an insight or
// added manually.
func (s *Store) CreateRule(ctx context.Context, tx *sql.Tx, r *model.Rule) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO rules (session_id, content, context, category, scope, priority, source_insight_id,
			project, tags, status, fire_count, success_count, fail_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, ?, ?)`,
		r.SessionID, r.Content, r.Context, string(r.Category), string(r.Scope), r.Priority, r.SourceInsightID,
		r.Project, encodeStrings(r.Tags), string(model.RuleActive), r.CreatedAt, r.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert rule: %w", err)
	}
	return res.LastInsertId()
}

const ruleSelectColumns = `SELECT id, session_id, content, context, category, scope, priority, source_insight_id,
	project, tags, status, fire_count, success_count, fail_count, last_fired, created_at, updated_at`

func scanRule(row rowScanner) (*model.Rule, error) {
	var (
		r          model.Rule
		category   string
		scope      string
		status     string
		tags       string
		contextVal sql.NullString
	)
	err := row.Scan(&r.ID, &r.SessionID, &r.Content, &contextVal, &category, &scope, &r.Priority, &r.SourceInsightID,
		&r.Project, &tags, &status, &r.FireCount, &r.SuccessCount, &r.FailCount, &r.LastFired, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}
	r.Category = model.ErrorCategory(category)
	r.Scope = model.RuleScope(scope)
	r.Status = model.RuleStatus(status)
	r.Tags = decodeStrings(tags)
	r.Context = contextVal.String
	return &r, nil
}

// GetRule fetches one rule by id.
func (s *Store) GetRule(ctx context.Context, id int64) (*model.Rule, error) {
	row := s.db.QueryRowContext(ctx, ruleSelectColumns+` FROM rules WHERE id = ?`, id)
	return scanRule(row)
}

// ListRulesForContext returns active rules matching global scope, the
// given project's scope, or the given category's scope, ordered by
// priority descending — the context a rule-fetch call assembles before an
// agent acts.
func (s *Store) ListRulesForContext(ctx context.Context, project string, category model.ErrorCategory) ([]*model.Rule, error) {
	rows, err := s.db.QueryContext(ctx, ruleSelectColumns+`
		FROM rules WHERE status = ? AND (scope = ? OR scope = ? OR scope = ?)
		ORDER BY priority DESC`,
		string(model.RuleActive), string(model.ScopeGlobal()), string(model.ScopeForProject(project)), string(model.ScopeForCategory(string(category))),
	)
	if err != nil {
		return nil, fmt.Errorf("list rules for context: %w", err)
	}
	defer rows.Close()

	var out []*model.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListRules returns every rule regardless of status, used by the `rules
// list` tool operation.
func (s *Store) ListRules(ctx context.Context) ([]*model.Rule, error) {
	rows, err := s.db.QueryContext(ctx, ruleSelectColumns+` FROM rules ORDER BY priority DESC`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []*model.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordRuleFire bumps fire_count and, if success is non-nil, the matching
// success/fail counter, then auto-suspends the rule when it crosses the
// fire_count >= 10 and success_rate < 0.2 threshold.
func (s *Store) RecordRuleFire(ctx context.Context, tx *sql.Tx, id int64, success *bool, at time.Time) error {
	r, err := func() (*model.Rule, error) {
		row := tx.QueryRowContext(ctx, ruleSelectColumns+` FROM rules WHERE id = ?`, id)
		return scanRule(row)
	}()
	if err != nil {
		return err
	}

	r.FireCount++
	if success != nil {
		if *success {
			r.SuccessCount++
		} else {
			r.FailCount++
		}
	}
	status := r.Status
	if status == model.RuleActive && r.ShouldAutoSuspend() {
		status = model.RuleSuspended
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE rules SET fire_count = ?, success_count = ?, fail_count = ?, status = ?, last_fired = ?, updated_at = ?
		WHERE id = ?`,
		r.FireCount, r.SuccessCount, r.FailCount, string(status), at, at, id)
	if err != nil {
		return fmt.Errorf("record rule fire: %w", err)
	}
	return nil
}

// TransitionRule moves a rule to a new status, rejecting illegal
// transitions.
func (s *Store) TransitionRule(ctx context.Context, tx *sql.Tx, id int64, to model.RuleStatus, at time.Time) error {
	var current string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM rules WHERE id = ?`, id).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("read rule status: %w", err)
	}
	from := model.RuleStatus(current)
	if !from.CanTransition(to) {
		return fmt.Errorf("illegal rule transition %s -> %s for id %d", from, to, id)
	}
	_, err := tx.ExecContext(ctx, `UPDATE rules SET status = ?, updated_at = ? WHERE id = ?`, string(to), at, id)
	if err != nil {
		return fmt.Errorf("transition rule: %w", err)
	}
	return nil
}
