package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/claude-memory/memoryd/internal/model"
)

// RelationLister fetches every relation touching a knowledge item,
// satisfied by *internal/store.Store's RelationsFor.
type RelationLister interface {
	RelationsFor(ctx context.Context, id int64) ([]*model.Relation, error)
	GetKnowledge(ctx context.Context, id int64) (*model.Knowledge, error)
}

// graphParentFanout caps how many of the current top-scored candidates get
// expanded via their relations.
const graphParentFanout = 5

// graphScoreFactor is how much of a parent's score a newly-introduced
// neighbor inherits.
const graphScoreFactor = 0.4

// GraphTier is tier 4: one-hop expansion over the relations graph, applied
// after the other three tiers have produced an initial scored set.
type GraphTier struct {
	Store RelationLister
}

// Expand takes the current merged candidate set (already sorted by score
// when passed in is not required; Expand sorts its own copy) and returns
// additional candidates introduced via relations from the top-scored
// parents, skipping ids already present.
func (t *GraphTier) Expand(ctx context.Context, q Query, current []Candidate) ([]Candidate, error) {
	ranked := append([]Candidate(nil), current...)
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > graphParentFanout {
		ranked = ranked[:graphParentFanout]
	}

	present := make(map[int64]bool, len(current))
	for _, c := range current {
		present[c.Knowledge.ID] = true
	}

	var out []Candidate
	for _, parent := range ranked {
		rels, err := t.Store.RelationsFor(ctx, parent.Knowledge.ID)
		if err != nil {
			return nil, fmt.Errorf("graph tier relations for %d: %w", parent.Knowledge.ID, err)
		}
		for _, rel := range rels {
			neighborID := rel.ToID
			if neighborID == parent.Knowledge.ID {
				neighborID = rel.FromID
			}
			if present[neighborID] {
				continue
			}
			neighbor, err := t.Store.GetKnowledge(ctx, neighborID)
			if err != nil || !neighbor.Status.Retrievable() {
				continue
			}
			if q.Type != "" && neighbor.Type != q.Type {
				continue
			}
			if q.Branch != "" && neighbor.Branch != "" && neighbor.Branch != q.Branch {
				continue
			}
			present[neighborID] = true
			out = append(out, Candidate{Knowledge: neighbor, Score: parent.Score * graphScoreFactor, Via: "graph"})
		}
	}
	return out, nil
}
