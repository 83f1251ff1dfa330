package selfimprove

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/claude-memory/memoryd/internal/model"
)

// RuleStore is the subset of *internal/store.Store rule operations depend
// on, kept separate from Store since rule actions never touch insights.
type RuleStore interface {
	GetRule(ctx context.Context, id int64) (*model.Rule, error)
	ListRules(ctx context.Context) ([]*model.Rule, error)
	ListRulesForContext(ctx context.Context, project string, category model.ErrorCategory) ([]*model.Rule, error)
	CreateRule(ctx context.Context, tx *sql.Tx, r *model.Rule) (int64, error)
	RecordRuleFire(ctx context.Context, tx *sql.Tx, id int64, success *bool, at time.Time) error
	TransitionRule(ctx context.Context, tx *sql.Tx, id int64, to model.RuleStatus, at time.Time) error
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// ListRules returns up to the top 30 rules matching project and/or scope,
// ordered by priority desc then success rate desc.
func ListRules(ctx context.Context, s RuleStore, project string, scope model.RuleScope) ([]*model.Rule, error) {
	all, err := s.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	var filtered []*model.Rule
	for _, r := range all {
		if project != "" && r.Project != project {
			continue
		}
		if scope != "" && r.Scope != scope {
			continue
		}
		filtered = append(filtered, r)
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Priority != filtered[j].Priority {
			return filtered[i].Priority > filtered[j].Priority
		}
		return filtered[i].SuccessRate() > filtered[j].SuccessRate()
	})
	if len(filtered) > 30 {
		filtered = filtered[:30]
	}
	return filtered, nil
}

// Fire increments a rule's fire_count and stamps last_fired, with no
// success/fail judgement yet.
func Fire(ctx context.Context, s RuleStore, id int64, now time.Time) (*model.Rule, error) {
	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.RecordRuleFire(ctx, tx, id, nil, now)
	}); err != nil {
		return nil, fmt.Errorf("fire rule %d: %w", id, err)
	}
	return s.GetRule(ctx, id)
}

// Rate records whether the most recent firing of a rule succeeded,
// recomputing its success rate and auto-suspending it if fire_count >= 10
// and success_rate < 0.2.
func Rate(ctx context.Context, s RuleStore, id int64, success bool, now time.Time) (*model.Rule, error) {
	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.RecordRuleFire(ctx, tx, id, &success, now)
	}); err != nil {
		return nil, fmt.Errorf("rate rule %d: %w", id, err)
	}
	return s.GetRule(ctx, id)
}

// Suspend, Activate and Retire move a rule through its explicit status
// transitions, rejecting illegal moves (e.g. retired -> active).
func Suspend(ctx context.Context, s RuleStore, id int64, now time.Time) (*model.Rule, error) {
	return transitionRule(ctx, s, id, model.RuleSuspended, now)
}

func Activate(ctx context.Context, s RuleStore, id int64, now time.Time) (*model.Rule, error) {
	return transitionRule(ctx, s, id, model.RuleActive, now)
}

func Retire(ctx context.Context, s RuleStore, id int64, now time.Time) (*model.Rule, error) {
	return transitionRule(ctx, s, id, model.RuleRetired, now)
}

func transitionRule(ctx context.Context, s RuleStore, id int64, to model.RuleStatus, now time.Time) (*model.Rule, error) {
	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.TransitionRule(ctx, tx, id, to, now)
	}); err != nil {
		return nil, fmt.Errorf("transition rule %d to %s: %w", id, to, err)
	}
	return s.GetRule(ctx, id)
}

// AddManualInput carries the fields for a rule added directly by an
// operator rather than promoted from an insight.
type AddManualInput struct {
	SessionID string
	Content   string
	Context   string
	Category  model.ErrorCategory
	Scope     model.RuleScope
	Priority  int
	Project   string
	Tags      []string
}

// AddManual inserts a new active rule with no source insight.
func AddManual(ctx context.Context, s RuleStore, in AddManualInput, now time.Time) (*model.Rule, error) {
	rule := &model.Rule{
		SessionID: in.SessionID,
		Content:   in.Content,
		Context:   in.Context,
		Category:  in.Category,
		Scope:     in.Scope,
		Priority:  clamp(in.Priority, 1, 10),
		Project:   in.Project,
		Tags:      in.Tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var e error
		id, e = s.CreateRule(ctx, tx, rule)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("add manual rule: %w", err)
	}
	rule.ID = id
	rule.Status = model.RuleActive
	return rule, nil
}

// RulesForContext returns the top 20 active rules whose scope applies to
// project or any of categories (plus global), ordered by priority then
// success rate, bumping each returned rule's fire_count and last_fired as
// a relevance-tracking side effect.
func RulesForContext(ctx context.Context, s RuleStore, project string, categories []model.ErrorCategory, now time.Time) ([]*model.Rule, error) {
	seen := make(map[int64]*model.Rule)
	if len(categories) == 0 {
		categories = []model.ErrorCategory{""}
	}
	for _, cat := range categories {
		rules, err := s.ListRulesForContext(ctx, project, cat)
		if err != nil {
			return nil, fmt.Errorf("rules for context: %w", err)
		}
		for _, r := range rules {
			seen[r.ID] = r
		}
	}

	all := make([]*model.Rule, 0, len(seen))
	for _, r := range seen {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Priority != all[j].Priority {
			return all[i].Priority > all[j].Priority
		}
		return all[i].SuccessRate() > all[j].SuccessRate()
	})
	if len(all) > 20 {
		all = all[:20]
	}

	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, r := range all {
			if err := s.RecordRuleFire(ctx, tx, r.ID, nil, now); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("bump fire count for context rules: %w", err)
	}

	for _, r := range all {
		r.FireCount++
		r.LastFired = &now
	}
	return all, nil
}
