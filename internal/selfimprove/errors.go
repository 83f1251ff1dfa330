// Package selfimprove implements the error→insight→rule promotion pipeline:
// logging a mistake, detecting recurring patterns, voting insights up or
// down, and promoting a strong insight into a behavioral rule.
package selfimprove

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/claude-memory/memoryd/internal/model"
	"github.com/claude-memory/memoryd/internal/store"
)

// patternWindow is how far back pattern detection looks for same-category
// errors.
const patternWindow = 30 * 24 * time.Hour

// patternThreshold is how many same-category/project errors in the window
// trigger a suggestion.
const patternThreshold = 3

// maxPatternSourceIDs caps how many error ids a suggestion carries.
const maxPatternSourceIDs = 10

// descriptionTruncateLen bounds each carried error description.
const descriptionTruncateLen = 200

// LogResult is the outcome of LogError: the inserted error plus an
// optional pattern-triggered suggestion.
type LogResult struct {
	Error      *model.Error
	Suggestion *PatternSuggestion
}

// PatternSuggestion recommends either upvoting an existing insight or
// adding a new one, once three or more same-category errors land in the
// same project within the pattern window.
type PatternSuggestion struct {
	// ExistingInsightID is set when an active insight already covers this
	// category/project; the caller should upvote it instead of adding a
	// new one.
	ExistingInsightID *int64
	Category          model.ErrorCategory
	Project           string
	SourceErrorIDs    []int64
	Descriptions      []string
}

// Store is the subset of *internal/store.Store this package depends on.
type Store interface {
	CreateError(ctx context.Context, tx *sql.Tx, e *model.Error) (int64, error)
	RecentErrorsByCategory(ctx context.Context, category model.ErrorCategory, project string, since time.Time) ([]*model.Error, error)
	GetInsight(ctx context.Context, id int64) (*model.Insight, error)
	ListActiveInsights(ctx context.Context, project string) ([]*model.Insight, error)
	CreateInsight(ctx context.Context, tx *sql.Tx, in *model.Insight) (int64, error)
	MarkErrorsInsightExtracted(ctx context.Context, tx *sql.Tx, ids []int64, insightID int64) error
	AdjustInsightImportance(ctx context.Context, tx *sql.Tx, id int64, delta int, at time.Time) error
	PromoteInsight(ctx context.Context, tx *sql.Tx, id, ruleID int64, at time.Time) error
	CreateRule(ctx context.Context, tx *sql.Tx, r *model.Rule) (int64, error)
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// LogError inserts a new error (status resolved iff fix is non-empty, open
// otherwise) and runs pattern detection in the same transaction.
func LogError(ctx context.Context, s Store, e *model.Error, now time.Time) (LogResult, error) {
	if e.Fix != "" {
		e.ResolvedAt = &now
	}

	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var insErr error
		id, insErr = s.CreateError(ctx, tx, e)
		return insErr
	})
	if err != nil {
		return LogResult{}, fmt.Errorf("log error: %w", err)
	}
	e.ID = id
	if e.Fix != "" {
		e.Status = model.ErrorResolved
	} else {
		e.Status = model.ErrorOpen
	}

	suggestion, err := detectPattern(ctx, s, e, now)
	if err != nil {
		return LogResult{}, err
	}
	return LogResult{Error: e, Suggestion: suggestion}, nil
}

func detectPattern(ctx context.Context, s Store, e *model.Error, now time.Time) (*PatternSuggestion, error) {
	recent, err := s.RecentErrorsByCategory(ctx, e.Category, e.Project, now.Add(-patternWindow))
	if err != nil {
		return nil, fmt.Errorf("pattern detection query: %w", err)
	}

	var unExtracted []*model.Error
	for _, re := range recent {
		if re.Status != model.ErrorInsightExtracted {
			unExtracted = append(unExtracted, re)
		}
	}
	if len(unExtracted) < patternThreshold {
		return nil, nil
	}

	suggestion := &PatternSuggestion{Category: e.Category, Project: e.Project}
	for i, re := range unExtracted {
		if i >= maxPatternSourceIDs {
			break
		}
		suggestion.SourceErrorIDs = append(suggestion.SourceErrorIDs, re.ID)
		suggestion.Descriptions = append(suggestion.Descriptions, truncate(re.Description, descriptionTruncateLen))
	}

	existing, err := findInsightForCategory(ctx, s, e.Project, e.Category)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		suggestion.ExistingInsightID = &existing.ID
	}
	return suggestion, nil
}

func findInsightForCategory(ctx context.Context, s Store, project string, category model.ErrorCategory) (*model.Insight, error) {
	insights, err := s.ListActiveInsights(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("find insight for category: %w", err)
	}
	for _, in := range insights {
		if in.Category == category {
			return in, nil
		}
	}
	return nil, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
