// Package lifecycle applies time-based state changes to stored knowledge:
// decay-adjusted scoring, the active→archived→purged retention sweep, and
// the observation TTL cleanup run once at startup.
package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/claude-memory/memoryd/internal/model"
	"github.com/claude-memory/memoryd/internal/store"
)

const ln2 = math.Ln2

// minDecay is the floor a fully stale item's decay factor never drops below,
// so an old-but-true fact still surfaces rather than vanishing entirely.
const minDecay = 0.01

// Decay returns the exponential down-weighting factor for an item last
// confirmed at lastConfirmed, given half-life halfLife. A zero
// lastConfirmed (unset) is treated as moderately stale rather than as an
// error.
func Decay(lastConfirmed time.Time, halfLife time.Duration, now time.Time) float64 {
	if lastConfirmed.IsZero() {
		return 0.5
	}
	days := now.Sub(lastConfirmed).Hours() / 24
	if days < 0 {
		days = 0
	}
	factor := math.Exp(-days * ln2 / (halfLife.Hours() / 24))
	return math.Max(minDecay, factor)
}

// RecallBoost is the bounded bonus recall_count contributes to a candidate's
// rescaled score.
func RecallBoost(recallCount int) float64 {
	return math.Min(0.3, float64(recallCount)*0.05)
}

// VectorDeleter removes a knowledge item's vector, satisfied by
// *internal/vectorindex.Index.
type VectorDeleter interface {
	Delete(ctx context.Context, id int64) error
}

// RetentionResult summarizes one ApplyRetention run.
type RetentionResult struct {
	Archived []*model.Knowledge
	Purged   []*model.Knowledge
}

// ApplyRetention transitions active items past archiveAfter (with zero
// recall and low confidence) to archived, and archived items past
// purgeAfter to purged, removing both classes from the vector index. With
// dryRun, the candidate sets are computed and returned without any
// mutation.
func ApplyRetention(ctx context.Context, s *store.Store, vectors VectorDeleter, archiveAfter, purgeAfter time.Duration, confidenceBelow float64, dryRun bool, now time.Time) (RetentionResult, error) {
	archiveCutoff := now.Add(-archiveAfter)
	purgeCutoff := now.Add(-purgeAfter)

	toArchive, err := s.ArchiveCandidates(ctx, archiveCutoff, confidenceBelow)
	if err != nil {
		return RetentionResult{}, fmt.Errorf("find archive candidates: %w", err)
	}
	toPurge, err := s.PurgeCandidates(ctx, purgeCutoff)
	if err != nil {
		return RetentionResult{}, fmt.Errorf("find purge candidates: %w", err)
	}

	result := RetentionResult{Archived: toArchive, Purged: toPurge}
	if dryRun {
		return result, nil
	}

	if err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, k := range toArchive {
			if err := s.TransitionKnowledge(ctx, tx, k.ID, model.KnowledgeArchived, nil); err != nil {
				return fmt.Errorf("archive item %d: %w", k.ID, err)
			}
		}
		for _, k := range toPurge {
			if err := s.TransitionKnowledge(ctx, tx, k.ID, model.KnowledgePurged, nil); err != nil {
				return fmt.Errorf("purge item %d: %w", k.ID, err)
			}
		}
		return nil
	}); err != nil {
		return RetentionResult{}, err
	}

	if vectors != nil {
		for _, k := range append(append([]*model.Knowledge{}, toArchive...), toPurge...) {
			_ = vectors.Delete(ctx, k.ID)
		}
	}
	return result, nil
}

// SweepObservations deletes observation rows older than retention, called
// once per store.Open before the stdio loop starts accepting requests.
func SweepObservations(ctx context.Context, s *store.Store, retention time.Duration, now time.Time) (int64, error) {
	n, err := s.PurgeStaleObservations(ctx, now.Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("sweep stale observations: %w", err)
	}
	return n, nil
}
