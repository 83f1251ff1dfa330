package timeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/claude-memory/memoryd/internal/model"
	"github.com/claude-memory/memoryd/internal/store"
)

// staleAfter marks an active knowledge item stale once its last_confirmed
// is older than this.
const staleAfter = 90 * 24 * time.Hour

var knowledgeStatuses = []model.KnowledgeStatus{
	model.KnowledgeActive, model.KnowledgeSuperseded, model.KnowledgeConsolidated,
	model.KnowledgeArchived, model.KnowledgePurged,
}

var knowledgeTypes = []model.KnowledgeType{
	model.TypeDecision, model.TypeFact, model.TypeSolution,
	model.TypeLesson, model.TypeConvention, model.TypeReflection,
}

// Stats is the aggregate health report returned by memory_stats.
type Stats struct {
	CountsByStatus map[model.KnowledgeStatus]int
	CountsByType   map[model.KnowledgeType]int
	TotalSessions  int
	StorageBytes   map[string]int64
	StaleCount     int
	NeverRecalled  int
	ActiveCount    int
	HealthScore    float64
	SelfImprove    SelfImproveCounters
}

// SelfImproveCounters summarizes the self-improvement ledger's size.
type SelfImproveCounters struct {
	ActiveInsights int
	TotalRules     int
	ActiveRules    int
}

// ComputeStats gathers counts per status/type, storage footprint, staleness
// and a coarse health score for a project (empty project means every
// project).
func ComputeStats(ctx context.Context, s *store.Store, memoryDir, project string, now time.Time) (Stats, error) {
	st := Stats{
		CountsByStatus: make(map[model.KnowledgeStatus]int),
		CountsByType:   make(map[model.KnowledgeType]int),
	}

	var active []*model.Knowledge
	for _, status := range knowledgeStatuses {
		items, err := s.ListKnowledge(ctx, store.KnowledgeFilter{Project: project, Status: status})
		if err != nil {
			return Stats{}, fmt.Errorf("list knowledge for status %s: %w", status, err)
		}
		st.CountsByStatus[status] = len(items)
		if status == model.KnowledgeActive {
			active = items
		}
	}
	for _, typ := range knowledgeTypes {
		items, err := s.ListKnowledge(ctx, store.KnowledgeFilter{Project: project, Type: typ})
		if err != nil {
			return Stats{}, fmt.Errorf("list knowledge for type %s: %w", typ, err)
		}
		st.CountsByType[typ] = len(items)
	}

	st.ActiveCount = len(active)
	for _, k := range active {
		if now.Sub(k.LastConfirmed) > staleAfter {
			st.StaleCount++
		}
		if k.RecallCount == 0 {
			st.NeverRecalled++
		}
	}
	st.HealthScore = healthScore(st.StaleCount, st.NeverRecalled, st.ActiveCount)

	sessions, err := s.ListSessions(ctx, project, 0)
	if err != nil {
		return Stats{}, fmt.Errorf("list sessions: %w", err)
	}
	st.TotalSessions = len(sessions)

	st.StorageBytes = directorySizes(memoryDir)

	insights, err := s.ListActiveInsights(ctx, project)
	if err != nil {
		return Stats{}, fmt.Errorf("list active insights: %w", err)
	}
	rules, err := s.ListRules(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list rules: %w", err)
	}
	active2 := 0
	for _, r := range rules {
		if r.Status == model.RuleActive {
			active2++
		}
	}
	st.SelfImprove = SelfImproveCounters{
		ActiveInsights: len(insights),
		TotalRules:     len(rules),
		ActiveRules:    active2,
	}

	return st, nil
}

// healthScore is max(0, 1 - 0.5*stale/active - 0.3*never_recalled/active),
// with an empty active set scoring a perfect 1.0.
func healthScore(stale, neverRecalled, activeCount int) float64 {
	if activeCount == 0 {
		return 1.0
	}
	score := 1.0 - 0.5*float64(stale)/float64(activeCount) - 0.3*float64(neverRecalled)/float64(activeCount)
	if score < 0 {
		return 0
	}
	return score
}

// directorySizes walks each immediate subdirectory of memoryDir and sums
// its file sizes, plus the top-level database file.
func directorySizes(memoryDir string) map[string]int64 {
	sizes := make(map[string]int64)
	entries, err := os.ReadDir(memoryDir)
	if err != nil {
		return sizes
	}
	for _, entry := range entries {
		path := filepath.Join(memoryDir, entry.Name())
		if entry.IsDir() {
			var total int64
			_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return nil
				}
				info, err := d.Info()
				if err != nil {
					return nil
				}
				total += info.Size()
				return nil
			})
			sizes[entry.Name()] = total
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		sizes[entry.Name()] = info.Size()
	}
	return sizes
}
