package model

import "time"

// Error is a structured record of a mistake an agent made, logged for the
// self-improvement ledger's error -> insight -> rule pipeline.
type Error struct {
	ID          int64         `json:"id"`
	SessionID   string        `json:"session_id"`
	Category    ErrorCategory `json:"category"`
	Severity    string        `json:"severity"`
	Description string        `json:"description"`
	Context     string        `json:"context,omitempty"`
	Fix         string        `json:"fix,omitempty"`
	Project     string        `json:"project"`
	Tags        []string      `json:"tags,omitempty"`
	Status      ErrorStatus   `json:"status"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
	InsightID   *int64        `json:"insight_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Insight is a promoted summary of one or more recurring errors.
type Insight struct {
	ID               int64         `json:"id"`
	SessionID        string        `json:"session_id"`
	Content          string        `json:"content"`
	Context          string        `json:"context,omitempty"`
	Category         ErrorCategory `json:"category"`
	Importance       int           `json:"importance"`
	Confidence       float64       `json:"confidence"`
	SourceErrorIDs   []int64       `json:"source_error_ids,omitempty"`
	Project          string        `json:"project"`
	Tags             []string      `json:"tags,omitempty"`
	Status           InsightStatus `json:"status"`
	PromotedToRuleID *int64        `json:"promoted_to_rule_id,omitempty"`
	FireCount        int           `json:"fire_count"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// PromotionEligible reports whether an insight meets the threshold to be
// promoted to a rule (importance >= 5 and confidence >= 0.8).
func (i *Insight) PromotionEligible() bool {
	return i.Status == InsightActive && i.Importance >= 5 && i.Confidence >= 0.8
}

// Rule is a behavioral rule with measured effectiveness, promoted from an
// insight or added manually.
type Rule struct {
	ID              int64         `json:"id"`
	SessionID       string        `json:"session_id"`
	Content         string        `json:"content"`
	Context         string        `json:"context,omitempty"`
	Category        ErrorCategory `json:"category"`
	Scope           RuleScope     `json:"scope"`
	Priority        int           `json:"priority"`
	SourceInsightID *int64        `json:"source_insight_id,omitempty"`
	Project         string        `json:"project"`
	Tags            []string      `json:"tags,omitempty"`
	Status          RuleStatus    `json:"status"`
	FireCount       int           `json:"fire_count"`
	SuccessCount    int           `json:"success_count"`
	FailCount       int           `json:"fail_count"`
	LastFired       *time.Time    `json:"last_fired,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// SuccessRate is success_count / max(fire_count, 1).
func (r *Rule) SuccessRate() float64 {
	denom := r.FireCount
	if denom < 1 {
		denom = 1
	}
	return float64(r.SuccessCount) / float64(denom)
}

// ShouldAutoSuspend reports the invariant in spec.md §3: a rule with
// fire_count >= 10 and success_rate < 0.2 auto-transitions to suspended.
func (r *Rule) ShouldAutoSuspend() bool {
	return r.FireCount >= 10 && r.SuccessRate() < 0.2
}
