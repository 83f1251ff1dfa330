// Package dedup implements write-time duplicate detection and the explicit
// consolidation sweep that merges near-duplicate active knowledge items.
package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/claude-memory/memoryd/internal/model"
	"github.com/claude-memory/memoryd/internal/similarity"
	"github.com/claude-memory/memoryd/internal/store"
)

// maxCandidateTokens bounds how many content tokens seed the write-time
// lexical probe query.
const maxCandidateTokens = 12

// candidateLimit is how many top lexical matches are scored against the
// incoming item.
const candidateLimit = 5

// ProbeResult reports the outcome of a write-time dedup check.
type ProbeResult struct {
	// Duplicate is true when an existing item absorbed the write.
	Duplicate bool
	// ExistingID is the id of the absorbing item when Duplicate is true.
	ExistingID int64
}

// Probe runs the write-time dedup query: build an OR-joined lexical query
// from the new item's own content tokens, fetch the top same-(type,
// project) candidates, and if any clears the jaccard or ratio threshold,
// refresh its last_confirmed instead of letting the caller insert a new
// row. The lexical lookup runs against tx itself rather than the store's
// pooled connection: the store opens with a single-connection pool, so a
// second query against the pool while tx (opened by the same caller) still
// holds that one connection would block forever.
func Probe(ctx context.Context, s *store.Store, tx *sql.Tx, content, itemType, project string, now time.Time) (ProbeResult, error) {
	query := candidateQuery(content)
	if query == "" {
		return ProbeResult{}, nil
	}

	hits, err := s.DuplicateCandidatesTx(ctx, tx, query, itemType, project, candidateLimit)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("dedup probe lexical search: %w", err)
	}

	for _, hit := range hits {
		k := hit.Knowledge
		if similarity.Jaccard(content, k.Content) > similarity.DedupJaccard ||
			similarity.Ratio(content, k.Content) > similarity.DedupRatio {
			if err := s.ConfirmKnowledge(ctx, tx, k.ID, now); err != nil {
				return ProbeResult{}, fmt.Errorf("confirm deduplicated item %d: %w", k.ID, err)
			}
			return ProbeResult{Duplicate: true, ExistingID: k.ID}, nil
		}
	}
	return ProbeResult{}, nil
}

// candidateQuery builds an FTS5 MATCH expression from up to
// maxCandidateTokens tokens of length > 2 in content, joined by OR.
func candidateQuery(content string) string {
	fields := strings.Fields(content)
	var terms []string
	for _, f := range fields {
		term := strings.Trim(f, `.,;:!?"'()[]{}`)
		if len(term) <= 2 {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(term, `"`, ``)+`"`)
		if len(terms) == maxCandidateTokens {
			break
		}
	}
	if len(terms) == 0 {
		return ""
	}
	return strings.Join(terms, " OR ")
}

// Group is one set of near-duplicate items discovered by a consolidation
// sweep: Kept is the longest-content item, Merged are the rest.
type Group struct {
	Kept   *model.Knowledge
	Merged []*model.Knowledge
}

// DefaultConsolidationThreshold is used when the caller does not specify
// one for the sweep.
const DefaultConsolidationThreshold = similarity.ConsolidationRatio

// Preview scans active items in the given project (or every project when
// empty) ordered by id, grouping later items into earlier ones whenever
// they share (type, project) and clear threshold on jaccard similarity.
// It never mutates the store; Sweep calls this and then applies the result.
func Preview(ctx context.Context, s *store.Store, project string, threshold float64) ([]Group, error) {
	items, err := s.ListKnowledge(ctx, store.KnowledgeFilter{Project: project, Status: model.KnowledgeActive})
	if err != nil {
		return nil, fmt.Errorf("list active knowledge for consolidation: %w", err)
	}
	// ListKnowledge orders by last_confirmed desc; the sweep requires id
	// order so visitation matches the "scan active items ordered by id"
	// definition.
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	visited := make(map[int64]bool, len(items))
	var groups []Group

	for i, a := range items {
		if visited[a.ID] {
			continue
		}
		var merged []*model.Knowledge
		for j := i + 1; j < len(items); j++ {
			b := items[j]
			if visited[b.ID] || b.Type != a.Type || b.Project != a.Project {
				continue
			}
			if similarity.Jaccard(a.Content, b.Content) > threshold {
				merged = append(merged, b)
				visited[b.ID] = true
			}
		}
		if len(merged) == 0 {
			continue
		}
		visited[a.ID] = true

		candidates := append([]*model.Knowledge{a}, merged...)
		kept := longest(candidates)
		var rest []*model.Knowledge
		for _, c := range candidates {
			if c.ID != kept.ID {
				rest = append(rest, c)
			}
		}
		groups = append(groups, Group{Kept: kept, Merged: rest})
	}
	return groups, nil
}

// VectorDeleter removes a knowledge item's vector from the semantic index,
// satisfied by *internal/vectorindex.Index.
type VectorDeleter interface {
	Delete(ctx context.Context, id int64) error
}

// Merger reduces a group's contents into one consolidated statement,
// satisfied by *internal/summarize.Claude. Sweep falls back to keeping the
// kept item's own content unchanged when none is configured.
type Merger interface {
	Merge(ctx context.Context, contents []string) (string, error)
}

// Sweep runs Preview and, unless dryRun, applies every group: the merged
// items transition to consolidated with superseded_by pointing at the kept
// item, are dropped from the vector index, and the kept item's
// last_confirmed is refreshed. When merger is non-nil, the kept item's
// content is replaced by merger.Merge of every content in the group instead
// of being left as the longest original. All mutation for one group happens
// inside a single transaction; a merge failure does not abort the sweep, it
// just leaves that group's kept content unmerged.
func Sweep(ctx context.Context, s *store.Store, vectors VectorDeleter, merger Merger, project string, threshold float64, dryRun bool, now time.Time) ([]Group, error) {
	if threshold <= 0 {
		threshold = DefaultConsolidationThreshold
	}
	groups, err := Preview(ctx, s, project, threshold)
	if err != nil {
		return nil, err
	}
	if dryRun {
		return groups, nil
	}

	for _, g := range groups {
		keptID := g.Kept.ID
		merged := mergedContent(ctx, merger, g)

		err := s.WithTx(ctx, func(tx *sql.Tx) error {
			for _, m := range g.Merged {
				if err := s.TransitionKnowledge(ctx, tx, m.ID, model.KnowledgeConsolidated, &keptID); err != nil {
					return fmt.Errorf("consolidate item %d into %d: %w", m.ID, keptID, err)
				}
			}
			if merged != "" && merged != g.Kept.Content {
				if err := s.UpdateKnowledgeContent(ctx, tx, keptID, merged, now); err != nil {
					return err
				}
				return nil
			}
			return s.ConfirmKnowledge(ctx, tx, keptID, now)
		})
		if err != nil {
			return nil, err
		}
		if vectors != nil {
			for _, m := range g.Merged {
				_ = vectors.Delete(ctx, m.ID)
			}
		}
	}
	return groups, nil
}

// mergedContent asks merger to fold a group's contents into one statement,
// returning "" on any failure or absent merger so the caller falls back to
// confirming the kept item's existing content unchanged.
func mergedContent(ctx context.Context, merger Merger, g Group) string {
	if merger == nil {
		return ""
	}
	contents := make([]string, 0, len(g.Merged)+1)
	contents = append(contents, g.Kept.Content)
	for _, m := range g.Merged {
		contents = append(contents, m.Content)
	}
	out, err := merger.Merge(ctx, contents)
	if err != nil {
		return ""
	}
	return out
}

func longest(items []*model.Knowledge) *model.Knowledge {
	best := items[0]
	for _, it := range items[1:] {
		if len(it.Content) > len(best.Content) {
			best = it
		}
	}
	return best
}
