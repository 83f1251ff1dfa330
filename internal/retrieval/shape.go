package retrieval

import (
	"time"

	"github.com/claude-memory/memoryd/internal/model"
)

// ShapedItem is one result entry, populated according to the requested
// detail level. Fields the level omits are left zero and tagged
// omitempty so compact/summary responses stay small on the wire.
type ShapedItem struct {
	ID            int64               `json:"id"`
	Title         string              `json:"title,omitempty"`
	Content       string              `json:"content,omitempty"`
	Context       string              `json:"context,omitempty"`
	Project       string              `json:"project"`
	Type          model.KnowledgeType `json:"type,omitempty"`
	Tags          []string            `json:"tags,omitempty"`
	Score         float64             `json:"score"`
	CreatedAt     time.Time           `json:"created_at"`
	LastConfirmed time.Time           `json:"last_confirmed,omitempty"`
	Via           string              `json:"via,omitempty"`
	Decay         float64             `json:"decay,omitempty"`
	Branch        string              `json:"branch,omitempty"`
	RecallCount   int                 `json:"recall_count,omitempty"`
	TokenCost     int                 `json:"token_cost"`
}

const titleMaxLen = 80
const summaryContentMaxLen = 150

// shape renders one candidate at the requested detail level.
func shape(c Candidate, detail Detail, decay float64) ShapedItem {
	k := c.Knowledge
	item := ShapedItem{
		ID:        k.ID,
		Project:   k.Project,
		Score:     c.Score,
		CreatedAt: k.CreatedAt,
	}

	switch detail {
	case DetailCompact:
		item.Title = truncateRunes(k.Content, titleMaxLen)
	case DetailFull:
		item.Content = k.Content
		item.Context = k.Context
		item.Type = k.Type
		item.Tags = k.Tags
		item.LastConfirmed = k.LastConfirmed
		item.Via = c.Via
		item.Decay = decay
		item.Branch = k.Branch
		item.RecallCount = k.RecallCount
	default: // DetailSummary
		item.Content = truncateRunes(k.Content, summaryContentMaxLen)
	}

	item.TokenCost = estimateTokens(item)
	return item
}

// estimateTokens is the crude len/4 heuristic applied to everything the
// shaped item carries as text.
func estimateTokens(item ShapedItem) int {
	n := len(item.Title) + len(item.Content) + len(item.Context)
	return n / 4
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
