package retrieval

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/claude-memory/memoryd/internal/lifecycle"
	"github.com/claude-memory/memoryd/internal/store"
)

// Writer is the subset of *internal/store.Store the pipeline needs for its
// final counter-bump-and-confirm step.
type Writer interface {
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
	BumpRecall(ctx context.Context, tx *sql.Tx, ids []int64, at interface{}) error
	ConfirmKnowledge(ctx context.Context, tx *sql.Tx, id int64, at interface{}) error
}

// Pipeline runs the four retrieval tiers and merges their output into one
// ranked, decay-adjusted, shaped result set.
type Pipeline struct {
	Lexical  Fetcher
	Semantic Fetcher
	Fuzzy    Fetcher
	Graph    *GraphTier
	Store    Writer
	HalfLife time.Duration
	Log      zerolog.Logger
}

// Result is the finalized, shaped response to one recall request.
type Result struct {
	Items          []ShapedItem
	TotalTokenCost int
}

// Run executes tiers 1-4 in sequence (tier 3 and 4 are gated on the merged
// set's size), rescales by decay and recall, bumps recall counters for the
// returned ids under a single writer transaction, and shapes the output.
func (p *Pipeline) Run(ctx context.Context, q Query, now time.Time) (Result, error) {
	q = q.Normalized()

	var lexCandidates, semCandidates []Candidate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lexCandidates, err = p.Lexical.Fetch(gctx, q)
		return err
	})
	g.Go(func() error {
		if p.Semantic == nil {
			return nil
		}
		out, err := p.Semantic.Fetch(gctx, q)
		if err != nil {
			// Semantic is optional infrastructure: an embedder hiccup or a
			// vector store miss degrades recall to the remaining tiers
			// rather than failing the whole request, and must not cancel
			// gctx out from under the lexical fetch running alongside it.
			p.Log.Warn().Err(err).Msg("semantic tier fetch failed, continuing without it")
			return nil
		}
		semCandidates = out
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("retrieval tier 1: %w", err)
	}

	merged := newMergeSet()
	for _, c := range lexCandidates {
		merged.add(c)
	}
	for _, c := range semCandidates {
		merged.addOrBoost(c)
	}

	if p.Fuzzy != nil && merged.len() < q.Limit {
		fuzzyCandidates, err := p.Fuzzy.Fetch(ctx, q)
		if err != nil {
			return Result{}, fmt.Errorf("retrieval tier 3: %w", err)
		}
		for _, c := range fuzzyCandidates {
			merged.addIfAbsent(c)
		}
	}

	if p.Graph != nil {
		graphCandidates, err := p.Graph.Expand(ctx, q, merged.values())
		if err != nil {
			return Result{}, fmt.Errorf("retrieval tier 4: %w", err)
		}
		for _, c := range graphCandidates {
			merged.addIfAbsent(c)
		}
	}

	candidates := merged.values()
	decays := make(map[int64]float64, len(candidates))
	for i, c := range candidates {
		d := lifecycle.Decay(c.Knowledge.LastConfirmed, p.HalfLife, now)
		decays[c.Knowledge.ID] = d
		boost := lifecycle.RecallBoost(c.Knowledge.RecallCount)
		candidates[i].Score = c.Score * (d + boost)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.Knowledge.ID
	}
	if len(ids) > 0 {
		if err := p.Store.WithTx(ctx, func(tx *sql.Tx) error {
			if err := p.Store.BumpRecall(ctx, tx, ids, now); err != nil {
				return err
			}
			for _, id := range ids {
				if err := p.Store.ConfirmKnowledge(ctx, tx, id, now); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return Result{}, fmt.Errorf("finalize retrieval recall counters: %w", err)
		}
	}

	items := make([]ShapedItem, len(candidates))
	total := 0
	for i, c := range candidates {
		item := shape(c, q.Detail, decays[c.Knowledge.ID])
		items[i] = item
		total += item.TokenCost
	}

	return Result{Items: items, TotalTokenCost: total}, nil
}

// mergeSet keeps at most one candidate per knowledge id, in first-seen
// order, supporting the tier-specific merge behaviors the pipeline needs.
type mergeSet struct {
	order []int64
	byID  map[int64]*Candidate
}

func newMergeSet() *mergeSet {
	return &mergeSet{byID: make(map[int64]*Candidate)}
}

func (m *mergeSet) add(c Candidate) {
	cp := c
	m.byID[c.Knowledge.ID] = &cp
	m.order = append(m.order, c.Knowledge.ID)
}

// addOrBoost adds a new candidate under its own via-tag, or if the id is
// already present, adds its score to the existing entry without changing
// via (tier 2's "if the id already appears from tier 1, add" rule).
func (m *mergeSet) addOrBoost(c Candidate) {
	if existing, ok := m.byID[c.Knowledge.ID]; ok {
		existing.Score += c.Score
		return
	}
	m.add(c)
}

// addIfAbsent adds c only when its id isn't already present, used by tiers
// 3 and 4 which only fill gaps rather than reinforce existing hits.
func (m *mergeSet) addIfAbsent(c Candidate) {
	if _, ok := m.byID[c.Knowledge.ID]; ok {
		return
	}
	m.add(c)
}

func (m *mergeSet) len() int { return len(m.order) }

func (m *mergeSet) values() []Candidate {
	out := make([]Candidate, len(m.order))
	for i, id := range m.order {
		out[i] = *m.byID[id]
	}
	return out
}
