package retrieval

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/claude-memory/memoryd/internal/store"
)

// LexicalTier is tier 1: BM25 full-text search, normalized into the
// pipeline's 0..2 score range and floored at 0.5 so a lexical hit never
// scores below a weak semantic one.
type LexicalTier struct {
	Store *store.Store
}

// lexicalQuery builds an OR-of-quoted-tokens FTS5 expression from query
// tokens of length > 2, falling back to the whole quoted query when every
// token is too short to use.
func lexicalQuery(text string) string {
	fields := strings.Fields(text)
	var terms []string
	for _, f := range fields {
		term := strings.Trim(f, `.,;:!?"'()[]{}`)
		if len(term) <= 2 {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(term, `"`, ``)+`"`)
	}
	if len(terms) == 0 {
		return `"` + strings.ReplaceAll(strings.TrimSpace(text), `"`, ``) + `"`
	}
	return strings.Join(terms, " OR ")
}

func (t *LexicalTier) Fetch(ctx context.Context, q Query) ([]Candidate, error) {
	fq := lexicalQuery(q.Text)
	if strings.Trim(fq, `" OR`) == "" {
		return nil, nil
	}

	hits, err := t.Store.LexicalSearch(ctx, fq, q.Project, q.Limit*3)
	if err != nil {
		return nil, fmt.Errorf("lexical tier search: %w", err)
	}
	hits = filterHits(hits, q)
	if len(hits) == 0 {
		return nil, nil
	}

	maxAbs := 0.0
	for _, h := range hits {
		if a := math.Abs(h.Score); a > maxAbs {
			maxAbs = a
		}
	}
	denom := math.Max(maxAbs, 0.01)

	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		score := math.Abs(h.Score) / denom * 2.0
		if score < 0.5 {
			score = 0.5
		}
		out = append(out, Candidate{Knowledge: h.Knowledge, Score: score, Via: "fts"})
	}
	return out, nil
}

// filterHits applies the type and branch filters LexicalSearch itself
// doesn't: a branch filter also admits items with an empty branch.
func filterHits(hits []store.LexicalHit, q Query) []store.LexicalHit {
	if q.Type == "" && q.Branch == "" {
		return hits
	}
	out := hits[:0]
	for _, h := range hits {
		if q.Type != "" && h.Knowledge.Type != q.Type {
			continue
		}
		if q.Branch != "" && h.Knowledge.Branch != "" && h.Knowledge.Branch != q.Branch {
			continue
		}
		out = append(out, h)
	}
	return out
}

var _ Fetcher = (*LexicalTier)(nil)
