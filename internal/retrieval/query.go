// Package retrieval implements the four-tier ranked search over active
// knowledge: lexical, semantic, fuzzy, and one-hop graph expansion, merged
// and rescaled by recency decay and recall frequency.
package retrieval

import (
	"context"

	"github.com/claude-memory/memoryd/internal/model"
)

// Detail controls how much of each shaped result is returned.
type Detail string

const (
	DetailCompact Detail = "compact"
	DetailSummary Detail = "summary"
	DetailFull    Detail = "full"
)

// Query is one recall request.
type Query struct {
	Text    string
	Project string
	Type    model.KnowledgeType
	Branch  string
	Limit   int
	Detail  Detail
}

// Normalized returns a copy of q with defaults applied.
func (q Query) Normalized() Query {
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Detail == "" {
		q.Detail = DetailSummary
	}
	return q
}

// Candidate is one knowledge item in flight through the pipeline, scored
// and tagged with the tier that introduced it. A later tier may raise an
// already-present candidate's score but never duplicates it.
type Candidate struct {
	Knowledge *model.Knowledge
	Score     float64
	Via       string
}

// Fetcher is one retrieval tier. Each tier is independent and may run
// concurrently with the others; the pipeline is responsible for merging.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) ([]Candidate, error)
}
