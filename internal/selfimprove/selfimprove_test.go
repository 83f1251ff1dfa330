package selfimprove

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/claude-memory/memoryd/internal/model"
	"github.com/claude-memory/memoryd/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(dir, "memory.db"), filepath.Join(dir, "memory.db.lock"), zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLogErrorSetsStatusFromFix(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	result, err := LogError(ctx, s, &model.Error{
		SessionID: "sess-1", Category: model.CategoryCodeError, Severity: "medium",
		Description: "nil pointer in handler", Project: "p", CreatedAt: now,
	}, now)
	if err != nil {
		t.Fatalf("log error: %v", err)
	}
	if result.Error.Status != model.ErrorOpen {
		t.Errorf("expected open status with no fix, got %s", result.Error.Status)
	}

	fixed, err := LogError(ctx, s, &model.Error{
		SessionID: "sess-1", Category: model.CategoryCodeError, Severity: "medium",
		Description: "another nil pointer", Fix: "added a nil check", Project: "p", CreatedAt: now,
	}, now)
	if err != nil {
		t.Fatalf("log error with fix: %v", err)
	}
	if fixed.Error.Status != model.ErrorResolved {
		t.Errorf("expected resolved status with a fix, got %s", fixed.Error.Status)
	}
}

func TestLogErrorTriggersPatternAfterThreshold(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	var last LogResult
	for i := 0; i < 3; i++ {
		result, err := LogError(ctx, s, &model.Error{
			SessionID: "sess-1", Category: model.CategoryTimeout, Severity: "high",
			Description: "request timed out waiting on upstream", Project: "p", CreatedAt: now,
		}, now)
		if err != nil {
			t.Fatalf("log error %d: %v", i, err)
		}
		last = result
	}
	if last.Suggestion == nil {
		t.Fatal("expected a pattern suggestion after 3 same-category errors")
	}
	if len(last.Suggestion.SourceErrorIDs) != 3 {
		t.Errorf("expected 3 source error ids, got %d", len(last.Suggestion.SourceErrorIDs))
	}
	if last.Suggestion.ExistingInsightID != nil {
		t.Errorf("expected no existing insight yet, got %v", last.Suggestion.ExistingInsightID)
	}
}

func TestAddInsightAutoUpvotesNearDuplicate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := Add(ctx, s, AddInsightInput{
		SessionID: "sess-1", Content: "always check the response status code before parsing the body",
		Category: model.CategoryAPIError, Project: "p",
	}, now)
	if err != nil {
		t.Fatalf("add insight: %v", err)
	}
	if first.AutoUpvote {
		t.Fatal("first insert should not be an auto-upvote")
	}

	second, err := Add(ctx, s, AddInsightInput{
		SessionID: "sess-1", Content: "always check the response status code before parsing the response body",
		Category: model.CategoryAPIError, Project: "p",
	}, now)
	if err != nil {
		t.Fatalf("add near-duplicate insight: %v", err)
	}
	if !second.AutoUpvote {
		t.Fatal("near-duplicate insert should auto-upvote instead")
	}
	if second.Insight.ID != first.Insight.ID {
		t.Errorf("expected auto-upvote to target the original insight %d, got %d", first.Insight.ID, second.Insight.ID)
	}
	if second.Insight.Importance != defaultImportance+1 {
		t.Errorf("expected importance bumped to %d, got %d", defaultImportance+1, second.Insight.Importance)
	}
}

func TestInsightPromotionRequiresEligibility(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	added, err := Add(ctx, s, AddInsightInput{
		SessionID: "sess-1", Content: "retry transient network errors with backoff",
		Category: model.CategoryTimeout, Project: "general",
	}, now)
	if err != nil {
		t.Fatalf("add insight: %v", err)
	}

	if _, err := Promote(ctx, s, added.Insight.ID, now); err == nil {
		t.Fatal("expected promotion to fail before eligibility thresholds are met")
	}

	id := added.Insight.ID
	for i := 0; i < 3; i++ {
		if _, err := Upvote(ctx, s, id, now); err != nil {
			t.Fatalf("upvote %d: %v", i, err)
		}
	}

	rule, err := Promote(ctx, s, id, now)
	if err != nil {
		t.Fatalf("promote after eligibility: %v", err)
	}
	if rule.Scope != model.ScopeGlobal() {
		t.Errorf("expected global scope for project=general, got %s", rule.Scope)
	}
}

func TestDownvoteArchivesAtZeroImportance(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	added, err := Add(ctx, s, AddInsightInput{
		SessionID: "sess-1", Content: "never commit directly to the release branch",
		Category: model.CategoryConfigError, Project: "p",
	}, now)
	if err != nil {
		t.Fatalf("add insight: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := Downvote(ctx, s, added.Insight.ID, now); err != nil {
			t.Fatalf("downvote %d: %v", i, err)
		}
	}

	final, err := s.GetInsight(ctx, added.Insight.ID)
	if err != nil {
		t.Fatalf("get insight: %v", err)
	}
	if final.Status != model.InsightArchived {
		t.Errorf("expected archived at importance <= 0, got status=%s importance=%d", final.Status, final.Importance)
	}
}

func TestRuleFireAndRateAutoSuspends(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rule, err := AddManual(ctx, s, AddManualInput{
		SessionID: "sess-1", Content: "always run tests before pushing", Category: model.CategoryCodeError,
		Scope: model.ScopeGlobal(), Priority: 5, Project: "p",
	}, now)
	if err != nil {
		t.Fatalf("add manual rule: %v", err)
	}

	for i := 0; i < 10; i++ {
		success := false
		if _, err := Rate(ctx, s, rule.ID, success, now); err != nil {
			t.Fatalf("rate %d: %v", i, err)
		}
	}

	final, err := s.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if final.Status != model.RuleSuspended {
		t.Errorf("expected auto-suspend after 10 failures, got %s", final.Status)
	}
}

func TestRulesForContextBumpsFireCount(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rule, err := AddManual(ctx, s, AddManualInput{
		SessionID: "sess-1", Content: "confirm destructive commands before running them",
		Category: model.CategoryLogicError, Scope: model.ScopeGlobal(), Priority: 8, Project: "p",
	}, now)
	if err != nil {
		t.Fatalf("add manual rule: %v", err)
	}

	rules, err := RulesForContext(ctx, s, "p", []model.ErrorCategory{model.CategoryLogicError}, now)
	if err != nil {
		t.Fatalf("rules for context: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != rule.ID {
		t.Fatalf("expected the global rule to appear in context, got %+v", rules)
	}

	stored, err := s.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if stored.FireCount != 1 {
		t.Errorf("expected fire_count bumped to 1, got %d", stored.FireCount)
	}
}
