package retrieval

import (
	"context"
	"fmt"

	"github.com/claude-memory/memoryd/internal/model"
	"github.com/claude-memory/memoryd/internal/similarity"
)

// CandidateLister fetches recent active knowledge rows, satisfied by
// *internal/store.Store's FuzzyCandidates.
type CandidateLister interface {
	FuzzyCandidates(ctx context.Context, project string, limit int) ([]*model.Knowledge, error)
}

// FuzzyTier is tier 3: approximate string matching over recent active
// items, run only when the earlier tiers haven't already filled limit.
type FuzzyTier struct {
	Store CandidateLister
}

func (t *FuzzyTier) Fetch(ctx context.Context, q Query) ([]Candidate, error) {
	items, err := t.Store.FuzzyCandidates(ctx, q.Project, q.Limit*5)
	if err != nil {
		return nil, fmt.Errorf("fuzzy tier candidates: %w", err)
	}

	var out []Candidate
	for _, k := range items {
		if q.Type != "" && k.Type != q.Type {
			continue
		}
		if q.Branch != "" && k.Branch != "" && k.Branch != q.Branch {
			continue
		}
		ratio := similarity.RatioQuick(q.Text, k.Content)
		if ratio <= similarity.FuzzyTierRatio {
			continue
		}
		out = append(out, Candidate{Knowledge: k, Score: ratio * 0.6, Via: "fuzzy"})
	}
	return out, nil
}

var _ Fetcher = (*FuzzyTier)(nil)
