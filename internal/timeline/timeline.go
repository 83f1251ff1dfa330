// Package timeline answers session-ordered history queries and aggregate
// engine statistics, built directly against internal/store's session and
// knowledge queries so store itself stays a dumb persistence layer.
package timeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/claude-memory/memoryd/internal/model"
	"github.com/claude-memory/memoryd/internal/store"
)

// maxEventsPerSession caps how many timeline events attach to a returned
// session.
const maxEventsPerSession = 30

// SessionView is one session enriched with its position in the global
// session order, its recent events, and its active knowledge.
type SessionView struct {
	Session     *model.Session
	GlobalIndex int // 1-based, oldest session is 1
	Events      []*model.TimelineEvent
	Knowledge   []*model.Knowledge
}

// Query selects sessions by exactly one of its populated fields; at most
// one of SessionsAgo, SessionNumber, date range, or Text should be set by
// the caller.
type Query struct {
	Project     string
	SessionsAgo *int
	// SessionNumber is 1-based from the start of the global order;
	// negative values count from the end (-1 is the most recent session).
	SessionNumber *int
	DateFrom      time.Time
	DateTo        time.Time
	Text          string
	Limit         int
}

// Timeline resolves a Query against the global, chronologically ordered
// session list for a project.
func Timeline(ctx context.Context, s *store.Store, q Query) ([]SessionView, error) {
	ordered, err := globalOrder(ctx, s, q.Project)
	if err != nil {
		return nil, err
	}
	if len(ordered) == 0 {
		return nil, nil
	}

	var selected []*model.Session
	switch {
	case q.SessionsAgo != nil:
		idx := len(ordered) - 1 - *q.SessionsAgo
		if idx >= 0 && idx < len(ordered) {
			selected = []*model.Session{ordered[idx]}
		}
	case q.SessionNumber != nil:
		n := *q.SessionNumber
		var idx int
		if n < 0 {
			idx = len(ordered) + n
		} else {
			idx = n - 1
		}
		if idx >= 0 && idx < len(ordered) {
			selected = []*model.Session{ordered[idx]}
		}
	case !q.DateFrom.IsZero() || !q.DateTo.IsZero():
		until := q.DateTo
		if !until.IsZero() {
			until = endOfDay(until)
		}
		for _, sess := range ordered {
			if !q.DateFrom.IsZero() && sess.StartedAt.Before(q.DateFrom) {
				continue
			}
			if !until.IsZero() && sess.StartedAt.After(until) {
				continue
			}
			selected = append(selected, sess)
		}
	case q.Text != "":
		selected, err = textMatch(ctx, s, ordered, q.Project, q.Text)
		if err != nil {
			return nil, err
		}
	default:
		selected = ordered
	}

	if q.Limit > 0 && len(selected) > q.Limit {
		selected = selected[:q.Limit]
	}

	indexOf := make(map[string]int, len(ordered))
	for i, sess := range ordered {
		indexOf[sess.ID] = i + 1
	}

	views := make([]SessionView, 0, len(selected))
	for _, sess := range selected {
		view, err := attachDetails(ctx, s, sess, indexOf[sess.ID])
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// globalOrder returns every session for project in ascending start-time
// order, the chronological axis global indices are assigned against.
func globalOrder(ctx context.Context, s *store.Store, project string) ([]*model.Session, error) {
	sessions, err := s.ListSessions(ctx, project, 0)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartedAt.Before(sessions[j].StartedAt) })
	return sessions, nil
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 999999999, t.Location())
}

// textMatch finds sessions whose own summary matches text, or that own a
// knowledge item matching text via the lexical index, unioned and
// deduplicated.
func textMatch(ctx context.Context, s *store.Store, ordered []*model.Session, project, text string) ([]*model.Session, error) {
	matched := make(map[string]bool)
	for _, sess := range ordered {
		if containsFold(sess.Summary, text) {
			matched[sess.ID] = true
		}
	}

	hits, err := s.LexicalSearch(ctx, lexicalOr(text), project, 100)
	if err != nil {
		return nil, fmt.Errorf("timeline text query: %w", err)
	}
	for _, h := range hits {
		matched[h.Knowledge.SessionID] = true
	}

	var out []*model.Session
	for _, sess := range ordered {
		if matched[sess.ID] {
			out = append(out, sess)
		}
	}
	return out, nil
}

func attachDetails(ctx context.Context, s *store.Store, sess *model.Session, globalIndex int) (SessionView, error) {
	events, err := s.QueryTimeline(ctx, store.TimelineFilter{SessionID: sess.ID, Limit: maxEventsPerSession})
	if err != nil {
		return SessionView{}, fmt.Errorf("query timeline events for session %s: %w", sess.ID, err)
	}
	knowledge, err := s.ListKnowledge(ctx, store.KnowledgeFilter{Project: sess.Project, Status: model.KnowledgeActive})
	if err != nil {
		return SessionView{}, fmt.Errorf("list knowledge for session %s: %w", sess.ID, err)
	}
	var owned []*model.Knowledge
	for _, k := range knowledge {
		if k.SessionID == sess.ID {
			owned = append(owned, k)
		}
	}
	return SessionView{Session: sess, GlobalIndex: globalIndex, Events: events, Knowledge: owned}, nil
}

func containsFold(s, substr string) bool {
	return len(substr) == 0 || indexFold(s, substr) >= 0
}

func indexFold(s, substr string) int {
	sLower := toLower(s)
	subLower := toLower(substr)
	return indexOf(sLower, subLower)
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func indexOf(s, substr string) int {
	n, m := len(s), len(substr)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}

// lexicalOr builds a simple OR-of-quoted-tokens FTS5 expression, mirroring
// the retrieval pipeline's own query construction.
func lexicalOr(text string) string {
	return `"` + text + `"`
}
