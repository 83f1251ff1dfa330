package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/claude-memory/memoryd/internal/timeline"
)

// TimelineArgs is memory_timeline's argument shape; at most one of the
// selector fields (sessions_ago, session_number, the date range, text)
// should be set, and timeline.Timeline resolves among them in that order.
type TimelineArgs struct {
	Project     string `json:"project,omitempty"`
	SessionsAgo *int   `json:"sessions_ago,omitempty"`
	SessionNum  *int   `json:"session_number,omitempty"`
	DateFrom    string `json:"date_from,omitempty"`
	DateTo      string `json:"date_to,omitempty"`
	Text        string `json:"text,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

func (e *Engine) handleTimeline(ctx context.Context, raw json.RawMessage) Response {
	var args TimelineArgs
	if err := decodeArgs(raw, &args); err != nil {
		return fail(err)
	}
	q := timeline.Query{Project: args.Project, SessionsAgo: args.SessionsAgo, SessionNumber: args.SessionNum, Text: args.Text, Limit: args.Limit}
	if args.DateFrom != "" {
		t, err := time.Parse("2006-01-02", args.DateFrom)
		if err != nil {
			return fail(fmt.Errorf("invalid date_from: %w", err))
		}
		q.DateFrom = t
	}
	if args.DateTo != "" {
		t, err := time.Parse("2006-01-02", args.DateTo)
		if err != nil {
			return fail(fmt.Errorf("invalid date_to: %w", err))
		}
		q.DateTo = t
	}
	views, err := timeline.Timeline(ctx, e.Store, q)
	if err != nil {
		return fail(err)
	}
	return ok(views)
}

// StatsArgs is memory_stats's argument shape.
type StatsArgs struct {
	Project string `json:"project,omitempty"`
}

func (e *Engine) handleStats(ctx context.Context, raw json.RawMessage) Response {
	var args StatsArgs
	if err := decodeArgs(raw, &args); err != nil {
		return fail(err)
	}
	stats, err := timeline.ComputeStats(ctx, e.Store, e.Config.MemoryDir, args.Project, time.Now().UTC())
	if err != nil {
		return fail(err)
	}
	return ok(stats)
}
