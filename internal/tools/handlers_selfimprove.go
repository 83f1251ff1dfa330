package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/claude-memory/memoryd/internal/model"
	"github.com/claude-memory/memoryd/internal/sanitize"
	"github.com/claude-memory/memoryd/internal/selfimprove"
	"github.com/claude-memory/memoryd/internal/timeline"
)

// ErrorLogArgs is self_error_log's argument shape.
type ErrorLogArgs struct {
	SessionID   string   `json:"session_id"`
	Category    string   `json:"category"`
	Severity    string   `json:"severity,omitempty"`
	Description string   `json:"description"`
	Context     string   `json:"context,omitempty"`
	Fix         string   `json:"fix,omitempty"`
	Project     string   `json:"project,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func (e *Engine) handleErrorLog(ctx context.Context, raw json.RawMessage) Response {
	var args ErrorLogArgs
	if err := decodeArgs(raw, &args); err != nil {
		return fail(err)
	}
	if args.Description == "" {
		return fail(fmt.Errorf("description is required"))
	}
	sanitize.Fields(&args.Description, &args.Context, &args.Fix)
	now := time.Now().UTC()
	result, err := selfimprove.LogError(ctx, e.Store, &model.Error{
		SessionID: args.SessionID, Category: model.ErrorCategory(args.Category), Severity: args.Severity,
		Description: args.Description, Context: args.Context, Fix: args.Fix, Project: args.Project,
		Tags: args.Tags, CreatedAt: now,
	}, now)
	if err != nil {
		return fail(err)
	}
	return ok(result)
}

// InsightArgs is self_insight's argument shape; Action is one of "add",
// "upvote", "downvote", "edit", "list", "promote".
type InsightArgs struct {
	Action         string   `json:"action"`
	ID             int64    `json:"id,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`
	Content        string   `json:"content,omitempty"`
	Context        string   `json:"context,omitempty"`
	Category       string   `json:"category,omitempty"`
	Project        string   `json:"project,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	SourceErrorIDs []int64  `json:"source_error_ids,omitempty"`
}

func (e *Engine) handleInsight(ctx context.Context, raw json.RawMessage) Response {
	var args InsightArgs
	if err := decodeArgs(raw, &args); err != nil {
		return fail(err)
	}
	now := time.Now().UTC()
	switch args.Action {
	case "add":
		sanitize.Fields(&args.Content, &args.Context)
		result, err := selfimprove.Add(ctx, e.Store, selfimprove.AddInsightInput{
			SessionID: args.SessionID, Content: args.Content, Context: args.Context,
			Category: model.ErrorCategory(args.Category), Project: args.Project,
			Tags: args.Tags, SourceErrorIDs: args.SourceErrorIDs,
		}, now)
		if err != nil {
			return fail(err)
		}
		return ok(result)
	case "upvote":
		insight, err := selfimprove.Upvote(ctx, e.Store, args.ID, now)
		if err != nil {
			return fail(err)
		}
		return ok(insight)
	case "downvote":
		insight, err := selfimprove.Downvote(ctx, e.Store, args.ID, now)
		if err != nil {
			return fail(err)
		}
		return ok(insight)
	case "edit":
		sanitize.Fields(&args.Content)
		insight, err := selfimprove.Edit(ctx, e.Store, args.ID, args.Content, now)
		if err != nil {
			return fail(err)
		}
		return ok(insight)
	case "list":
		insights, err := selfimprove.List(ctx, e.Store, args.Project, model.ErrorCategory(args.Category))
		if err != nil {
			return fail(err)
		}
		return ok(insights)
	case "promote":
		rule, err := selfimprove.Promote(ctx, e.Store, args.ID, now)
		if err != nil {
			return fail(err)
		}
		return ok(rule)
	default:
		return fail(fmt.Errorf("unknown action: %s", args.Action))
	}
}

// RulesArgs is self_rules's argument shape; Action is one of "list", "fire",
// "rate", "suspend", "activate", "retire", "add_manual".
type RulesArgs struct {
	Action    string   `json:"action"`
	ID        int64    `json:"id,omitempty"`
	Project   string   `json:"project,omitempty"`
	Scope     string   `json:"scope,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	Content   string   `json:"content,omitempty"`
	Context   string   `json:"context,omitempty"`
	Category  string   `json:"category,omitempty"`
	Priority  int      `json:"priority,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Success   *bool    `json:"success,omitempty"`
}

func (e *Engine) handleRules(ctx context.Context, raw json.RawMessage) Response {
	var args RulesArgs
	if err := decodeArgs(raw, &args); err != nil {
		return fail(err)
	}
	now := time.Now().UTC()
	switch args.Action {
	case "list":
		rules, err := selfimprove.ListRules(ctx, e.Store, args.Project, model.RuleScope(args.Scope))
		if err != nil {
			return fail(err)
		}
		return ok(rules)
	case "fire":
		rule, err := selfimprove.Fire(ctx, e.Store, args.ID, now)
		if err != nil {
			return fail(err)
		}
		return ok(rule)
	case "rate":
		if args.Success == nil {
			return fail(fmt.Errorf("success is required"))
		}
		rule, err := selfimprove.Rate(ctx, e.Store, args.ID, *args.Success, now)
		if err != nil {
			return fail(err)
		}
		return ok(rule)
	case "suspend":
		rule, err := selfimprove.Suspend(ctx, e.Store, args.ID, now)
		if err != nil {
			return fail(err)
		}
		return ok(rule)
	case "activate":
		rule, err := selfimprove.Activate(ctx, e.Store, args.ID, now)
		if err != nil {
			return fail(err)
		}
		return ok(rule)
	case "retire":
		rule, err := selfimprove.Retire(ctx, e.Store, args.ID, now)
		if err != nil {
			return fail(err)
		}
		return ok(rule)
	case "add_manual":
		sanitize.Fields(&args.Content, &args.Context)
		rule, err := selfimprove.AddManual(ctx, e.Store, selfimprove.AddManualInput{
			SessionID: args.SessionID, Content: args.Content, Context: args.Context,
			Category: model.ErrorCategory(args.Category), Scope: model.RuleScope(args.Scope),
			Priority: args.Priority, Project: args.Project, Tags: args.Tags,
		}, now)
		if err != nil {
			return fail(err)
		}
		return ok(rule)
	default:
		return fail(fmt.Errorf("unknown action: %s", args.Action))
	}
}

// PatternsArgs is self_patterns's argument shape; View is one of
// "error_patterns", "insight_candidates", "rule_effectiveness",
// "improvement_trend", "full_report".
type PatternsArgs struct {
	View       string `json:"view"`
	Project    string `json:"project,omitempty"`
	WindowDays int    `json:"window_days,omitempty"`
}

func (e *Engine) handlePatterns(ctx context.Context, raw json.RawMessage) Response {
	var args PatternsArgs
	if err := decodeArgs(raw, &args); err != nil {
		return fail(err)
	}
	windowDays := args.WindowDays
	if windowDays <= 0 {
		windowDays = 30
	}
	now := time.Now().UTC()
	switch args.View {
	case "error_patterns":
		freq, repeating, err := selfimprove.ErrorPatterns(ctx, e.Store, args.Project, windowDays)
		if err != nil {
			return fail(err)
		}
		return ok(map[string]interface{}{"category_frequency": freq, "repeating_patterns": repeating})
	case "insight_candidates":
		candidates, err := selfimprove.InsightCandidates(ctx, e.Store, args.Project)
		if err != nil {
			return fail(err)
		}
		return ok(candidates)
	case "rule_effectiveness":
		effectiveness, err := selfimprove.RuleEffectiveness(ctx, e.Store, now)
		if err != nil {
			return fail(err)
		}
		return ok(effectiveness)
	case "improvement_trend":
		trend, err := selfimprove.ImprovementTrend(ctx, e.Store, args.Project, now)
		if err != nil {
			return fail(err)
		}
		return ok(trend)
	case "full_report":
		report, err := selfimprove.Report(ctx, e.Store, args.Project, windowDays, now)
		if err != nil {
			return fail(err)
		}
		return ok(report)
	default:
		return fail(fmt.Errorf("unknown view: %s", args.View))
	}
}

// ReflectArgs is self_reflect's argument shape. self_reflect has no
// dedicated action list in the pattern-analysis surface; it bundles the
// full self-improvement report together with the engine's health stats
// into one end-to-end snapshot, meant for an assistant to read at the
// start of a session.
type ReflectArgs struct {
	Project    string `json:"project,omitempty"`
	WindowDays int    `json:"window_days,omitempty"`
}

func (e *Engine) handleReflect(ctx context.Context, raw json.RawMessage) Response {
	var args ReflectArgs
	if err := decodeArgs(raw, &args); err != nil {
		return fail(err)
	}
	windowDays := args.WindowDays
	if windowDays <= 0 {
		windowDays = 30
	}
	now := time.Now().UTC()
	report, err := selfimprove.Report(ctx, e.Store, args.Project, windowDays, now)
	if err != nil {
		return fail(err)
	}
	stats, err := timeline.ComputeStats(ctx, e.Store, e.Config.MemoryDir, args.Project, now)
	if err != nil {
		return fail(err)
	}
	return ok(map[string]interface{}{"report": report, "stats": stats})
}

// RulesContextArgs is self_rules_context's argument shape.
type RulesContextArgs struct {
	Project    string   `json:"project,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

func (e *Engine) handleRulesContext(ctx context.Context, raw json.RawMessage) Response {
	var args RulesContextArgs
	if err := decodeArgs(raw, &args); err != nil {
		return fail(err)
	}
	categories := make([]model.ErrorCategory, len(args.Categories))
	for i, c := range args.Categories {
		categories[i] = model.ErrorCategory(c)
	}
	rules, err := selfimprove.RulesForContext(ctx, e.Store, args.Project, categories, time.Now().UTC())
	if err != nil {
		return fail(err)
	}
	return ok(rules)
}
