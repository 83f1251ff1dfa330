package selfimprove

import (
	"context"
	"fmt"
	"time"

	"github.com/claude-memory/memoryd/internal/model"
)

// PatternStore is the subset of *internal/store.Store the pattern analysis
// views depend on.
type PatternStore interface {
	RecentErrorsByCategory(ctx context.Context, category model.ErrorCategory, project string, since time.Time) ([]*model.Error, error)
	ListActiveInsights(ctx context.Context, project string) ([]*model.Insight, error)
	ListRules(ctx context.Context) ([]*model.Rule, error)
}

// errorCategories enumerates every category error_patterns scans, since the
// store only exposes a per-category query.
var errorCategories = []model.ErrorCategory{
	model.CategoryCodeError, model.CategoryLogicError, model.CategoryConfigError,
	model.CategoryAPIError, model.CategoryTimeout, model.CategoryLoopDetected,
	model.CategoryWrongAssumption, model.CategoryMissingContext,
}

// CategoryFrequency is one (category, severity) bucket's count over the
// analysis window.
type CategoryFrequency struct {
	Category model.ErrorCategory
	Severity string
	Count    int
}

// RepeatingPattern flags a (category, project) combination with count >= 3
// in the window, the same trigger LogError's own pattern detection uses.
type RepeatingPattern struct {
	Category model.ErrorCategory
	Project  string
	Count    int
}

// ErrorPatterns computes category×severity frequency over the last
// windowDays days plus any repeating (category, project) pattern with
// count >= 3.
func ErrorPatterns(ctx context.Context, s PatternStore, project string, windowDays int) ([]CategoryFrequency, []RepeatingPattern, error) {
	since := time.Now().UTC().AddDate(0, 0, -windowDays)

	freqKey := func(cat model.ErrorCategory, sev string) string { return string(cat) + "|" + sev }
	freq := make(map[string]*CategoryFrequency)
	repeat := make(map[string]*RepeatingPattern)

	for _, cat := range errorCategories {
		errs, err := s.RecentErrorsByCategory(ctx, cat, project, since)
		if err != nil {
			return nil, nil, fmt.Errorf("error patterns for category %s: %w", cat, err)
		}
		if len(errs) >= patternThreshold {
			key := string(cat) + "|" + project
			repeat[key] = &RepeatingPattern{Category: cat, Project: project, Count: len(errs)}
		}
		for _, e := range errs {
			key := freqKey(cat, e.Severity)
			if freq[key] == nil {
				freq[key] = &CategoryFrequency{Category: cat, Severity: e.Severity}
			}
			freq[key].Count++
		}
	}

	frequencies := make([]CategoryFrequency, 0, len(freq))
	for _, f := range freq {
		frequencies = append(frequencies, *f)
	}
	patterns := make([]RepeatingPattern, 0, len(repeat))
	for _, p := range repeat {
		patterns = append(patterns, *p)
	}
	return frequencies, patterns, nil
}

// InsightCandidates returns every active insight currently eligible for
// promotion.
func InsightCandidates(ctx context.Context, s PatternStore, project string) ([]*model.Insight, error) {
	all, err := s.ListActiveInsights(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("insight candidates: %w", err)
	}
	var out []*model.Insight
	for _, in := range all {
		if in.PromotionEligible() {
			out = append(out, in)
		}
	}
	return out, nil
}

// RuleEffectivenessEntry pairs a rule with a staleness flag.
type RuleEffectivenessEntry struct {
	Rule  *model.Rule
	Stale bool
}

// staleRuleAfter is how long since last_fired marks a rule stale.
const staleRuleAfter = 60 * 24 * time.Hour

// RuleEffectiveness reports per-rule stats plus a staleness flag for rules
// whose last_fired is more than 60 days old (or that have never fired).
func RuleEffectiveness(ctx context.Context, s PatternStore, now time.Time) ([]RuleEffectivenessEntry, error) {
	rules, err := s.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("rule effectiveness: %w", err)
	}
	out := make([]RuleEffectivenessEntry, len(rules))
	for i, r := range rules {
		stale := r.LastFired == nil || now.Sub(*r.LastFired) > staleRuleAfter
		out[i] = RuleEffectivenessEntry{Rule: r, Stale: stale}
	}
	return out, nil
}

// TrendBucket is one week's error count with a direction relative to the
// prior bucket.
type TrendBucket struct {
	WeekStart time.Time
	Count     int
	Direction string // "up", "down", "flat", or "" for the first bucket
}

// ImprovementTrend buckets error counts into the last 4 weeks and tags each
// bucket's direction relative to the previous one.
func ImprovementTrend(ctx context.Context, s PatternStore, project string, now time.Time) ([]TrendBucket, error) {
	const weeks = 4
	buckets := make([]TrendBucket, weeks)
	for i := 0; i < weeks; i++ {
		weekStart := now.AddDate(0, 0, -7*(weeks-i))
		weekEnd := weekStart.AddDate(0, 0, 7)
		count := 0
		for _, cat := range errorCategories {
			errs, err := s.RecentErrorsByCategory(ctx, cat, project, weekStart)
			if err != nil {
				return nil, fmt.Errorf("improvement trend for category %s: %w", cat, err)
			}
			for _, e := range errs {
				if e.CreatedAt.Before(weekEnd) {
					count++
				}
			}
		}
		buckets[i] = TrendBucket{WeekStart: weekStart, Count: count}
	}
	for i := 1; i < weeks; i++ {
		switch {
		case buckets[i].Count > buckets[i-1].Count:
			buckets[i].Direction = "up"
		case buckets[i].Count < buckets[i-1].Count:
			buckets[i].Direction = "down"
		default:
			buckets[i].Direction = "flat"
		}
	}
	return buckets, nil
}

// FullReport bundles every pattern analysis view into one response.
type FullReport struct {
	Frequencies []CategoryFrequency
	Repeating   []RepeatingPattern
	Candidates  []*model.Insight
	Rules       []RuleEffectivenessEntry
	Trend       []TrendBucket
}

// Report runs every pattern analysis view and returns them together.
func Report(ctx context.Context, s PatternStore, project string, windowDays int, now time.Time) (FullReport, error) {
	freq, repeat, err := ErrorPatterns(ctx, s, project, windowDays)
	if err != nil {
		return FullReport{}, err
	}
	candidates, err := InsightCandidates(ctx, s, project)
	if err != nil {
		return FullReport{}, err
	}
	rules, err := RuleEffectiveness(ctx, s, now)
	if err != nil {
		return FullReport{}, err
	}
	trend, err := ImprovementTrend(ctx, s, project, now)
	if err != nil {
		return FullReport{}, err
	}
	return FullReport{Frequencies: freq, Repeating: repeat, Candidates: candidates, Rules: rules, Trend: trend}, nil
}
