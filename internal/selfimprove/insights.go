package selfimprove

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/claude-memory/memoryd/internal/model"
	"github.com/claude-memory/memoryd/internal/similarity"
)

// confidenceCap is the ceiling upvotes and auto-upvotes push confidence
// towards, never exceeding it.
const confidenceCap = 1.0

// confidenceStep is how much a single upvote or auto-upvote raises
// confidence.
const confidenceStep = 0.05

// defaultImportance and defaultConfidence seed a freshly inserted insight.
const (
	defaultImportance = 2
	defaultConfidence = 0.5
)

// AddInsightInput carries the fields needed to add or fold an insight.
type AddInsightInput struct {
	SessionID      string
	Content        string
	Context        string
	Category       model.ErrorCategory
	Project        string
	Tags           []string
	SourceErrorIDs []int64
}

// AddResult reports whether Add inserted a new insight or folded the
// content into an existing one via auto-upvote.
type AddResult struct {
	Insight    *model.Insight
	AutoUpvote bool
}

// Add inserts a new active insight, unless a fuzzy-similar (ratio > 0.70)
// active insight already exists for the same (category, project), in which
// case it is auto-upvoted instead (importance+1, confidence+0.05 capped).
func Add(ctx context.Context, s Store, in AddInsightInput, now time.Time) (AddResult, error) {
	candidates, err := s.ListActiveInsights(ctx, in.Project)
	if err != nil {
		return AddResult{}, fmt.Errorf("list active insights for dedup: %w", err)
	}

	for _, c := range candidates {
		if c.Category != in.Category {
			continue
		}
		if similarity.Ratio(c.Content, in.Content) > similarity.InsightDedupRatio {
			if err := s.WithTx(ctx, func(tx *sql.Tx) error {
				if e := s.AdjustInsightImportance(ctx, tx, c.ID, 1, now); e != nil {
					return e
				}
				return adjustConfidence(ctx, tx, c.ID, confidenceStep, now)
			}); err != nil {
				return AddResult{}, fmt.Errorf("auto-upvote insight %d: %w", c.ID, err)
			}
			final, err := s.GetInsight(ctx, c.ID)
			if err != nil {
				return AddResult{}, err
			}
			return AddResult{Insight: final, AutoUpvote: true}, nil
		}
	}

	var id int64
	insight := &model.Insight{
		SessionID:      in.SessionID,
		Content:        in.Content,
		Context:        in.Context,
		Category:       in.Category,
		Importance:     defaultImportance,
		Confidence:     defaultConfidence,
		SourceErrorIDs: in.SourceErrorIDs,
		Project:        in.Project,
		Tags:           in.Tags,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		var e error
		id, e = s.CreateInsight(ctx, tx, insight)
		if e != nil {
			return e
		}
		if len(in.SourceErrorIDs) > 0 {
			return s.MarkErrorsInsightExtracted(ctx, tx, in.SourceErrorIDs, id)
		}
		return nil
	})
	if err != nil {
		return AddResult{}, fmt.Errorf("add insight: %w", err)
	}
	insight.ID = id
	insight.Status = model.InsightActive
	return AddResult{Insight: insight, AutoUpvote: false}, nil
}

// adjustConfidence is implemented against *sql.Tx directly since confidence
// adjustment isn't part of the narrow Store interface; callers that need it
// pass a *store.Store-backed Store, whose underlying *sql.Tx this function
// operates on.
func adjustConfidence(ctx context.Context, tx *sql.Tx, id int64, delta float64, now time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE insights SET confidence = MIN(?, confidence + ?), updated_at = ? WHERE id = ?`,
		confidenceCap, delta, now, id)
	if err != nil {
		return fmt.Errorf("adjust insight confidence: %w", err)
	}
	return nil
}

// Upvote raises importance by 1 and confidence by 0.05 (capped at 1.0).
// PromotionEligible reflects importance >= 5 and confidence >= 0.8.
func Upvote(ctx context.Context, s Store, id int64, now time.Time) (*model.Insight, error) {
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if e := s.AdjustInsightImportance(ctx, tx, id, 1, now); e != nil {
			return e
		}
		return adjustConfidence(ctx, tx, id, confidenceStep, now)
	})
	if err != nil {
		return nil, fmt.Errorf("upvote insight %d: %w", id, err)
	}
	return s.GetInsight(ctx, id)
}

// Downvote lowers importance by 1; if the result is <= 0 the insight
// transitions to archived (enforced by AdjustInsightImportance).
func Downvote(ctx context.Context, s Store, id int64, now time.Time) (*model.Insight, error) {
	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.AdjustInsightImportance(ctx, tx, id, -1, now)
	}); err != nil {
		return nil, fmt.Errorf("downvote insight %d: %w", id, err)
	}
	return s.GetInsight(ctx, id)
}

// Edit rewrites the content of an active insight.
func Edit(ctx context.Context, s Store, id int64, content string, now time.Time) (*model.Insight, error) {
	current, err := s.GetInsight(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != model.InsightActive {
		return nil, fmt.Errorf("insight %d is not active, cannot edit", id)
	}
	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		_, e := tx.ExecContext(ctx, `UPDATE insights SET content = ?, updated_at = ? WHERE id = ?`, content, now, id)
		return e
	}); err != nil {
		return nil, fmt.Errorf("edit insight %d: %w", id, err)
	}
	return s.GetInsight(ctx, id)
}

// List returns the top 50 active insights for project/category (either may
// be empty), ordered by importance desc then confidence desc.
func List(ctx context.Context, s Store, project string, category model.ErrorCategory) ([]*model.Insight, error) {
	all, err := s.ListActiveInsights(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	var filtered []*model.Insight
	for _, in := range all {
		if category != "" && in.Category != category {
			continue
		}
		filtered = append(filtered, in)
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Importance != filtered[j].Importance {
			return filtered[i].Importance > filtered[j].Importance
		}
		return filtered[i].Confidence > filtered[j].Confidence
	})
	if len(filtered) > 50 {
		filtered = filtered[:50]
	}
	return filtered, nil
}

// Promote creates a rule from an eligible active insight (importance >= 5,
// confidence >= 0.8) and transitions the insight to promoted.
func Promote(ctx context.Context, s Store, id int64, now time.Time) (*model.Rule, error) {
	insight, err := s.GetInsight(ctx, id)
	if err != nil {
		return nil, err
	}
	if !insight.PromotionEligible() {
		return nil, fmt.Errorf("insight %d is not eligible for promotion", id)
	}

	scope := model.ScopeForProject(insight.Project)
	if insight.Project == "general" {
		scope = model.ScopeGlobal()
	}

	rule := &model.Rule{
		SessionID:       insight.SessionID,
		Content:         insight.Content,
		Context:         insight.Context,
		Category:        insight.Category,
		Scope:           scope,
		Priority:        clamp(insight.Importance, 1, 10),
		SourceInsightID: &insight.ID,
		Project:         insight.Project,
		Tags:            insight.Tags,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var ruleID int64
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		var e error
		ruleID, e = s.CreateRule(ctx, tx, rule)
		if e != nil {
			return e
		}
		return s.PromoteInsight(ctx, tx, id, ruleID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("promote insight %d: %w", id, err)
	}
	rule.ID = ruleID
	rule.Status = model.RuleActive
	return rule, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
