package retrieval

import (
	"context"
	"fmt"

	"github.com/claude-memory/memoryd/internal/model"
	"github.com/claude-memory/memoryd/internal/vectorindex"
)

// VectorIndex is the subset of *internal/vectorindex.Index the semantic
// tier depends on.
type VectorIndex interface {
	Query(ctx context.Context, embedding []float32, topK int, project string) ([]vectorindex.Match, error)
}

// Embedder is the subset of *internal/embedder's interface the semantic
// tier depends on.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Available() bool
}

// KnowledgeGetter fetches one knowledge row by id, satisfied by
// *internal/store.Store.
type KnowledgeGetter interface {
	GetKnowledge(ctx context.Context, id int64) (*model.Knowledge, error)
}

// SemanticTier is tier 2: dense vector similarity. It no-ops entirely when
// no embedder is configured, rather than erroring, since the semantic tier
// is optional infrastructure per the pipeline's design.
type SemanticTier struct {
	Embedder Embedder
	Index    VectorIndex
	Store    KnowledgeGetter
}

func (t *SemanticTier) Fetch(ctx context.Context, q Query) ([]Candidate, error) {
	if t.Embedder == nil || t.Index == nil || !t.Embedder.Available() {
		return nil, nil
	}

	vecs, err := t.Embedder.Embed(ctx, []string{q.Text})
	if err != nil {
		return nil, fmt.Errorf("semantic tier embed query: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, nil
	}

	matches, err := t.Index.Query(ctx, vecs[0], q.Limit*3, q.Project)
	if err != nil {
		return nil, fmt.Errorf("semantic tier vector query: %w", err)
	}

	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		k, err := t.Store.GetKnowledge(ctx, m.KnowledgeID)
		if err != nil {
			continue
		}
		if !k.Status.Retrievable() {
			continue
		}
		if q.Type != "" && k.Type != q.Type {
			continue
		}
		if q.Branch != "" && k.Branch != "" && k.Branch != q.Branch {
			continue
		}
		// chromem's Similarity is already cosine similarity (1 - cos
		// distance), so the spec's max(0, 1-distance) collapses to this.
		score := float64(m.Similarity)
		if score < 0 {
			score = 0
		}
		out = append(out, Candidate{Knowledge: k, Score: score, Via: "semantic"})
	}
	return out, nil
}

var _ Fetcher = (*SemanticTier)(nil)
