// Package dashboard serves the read-only HTTP views over the engine's
// store: aggregate stats, a paginated knowledge browser, per-item version
// history, a recent-sessions list, and a relation graph for the embedded
// static viewer. Every handler here is read-only; nothing in this package
// ever opens a write transaction.
package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/claude-memory/memoryd/internal/model"
	"github.com/claude-memory/memoryd/internal/store"
	"github.com/claude-memory/memoryd/internal/timeline"
)

//go:embed web
var webFiles embed.FS

const (
	defaultKnowledgeLimit = 50
	maxKnowledgeLimit     = 200
	graphTopN             = 200
)

// Server bundles the dependencies the dashboard's HTTP handlers need.
type Server struct {
	Store     *store.Store
	MemoryDir string
	Log       zerolog.Logger
}

// Router builds the chi router for the dashboard's static viewer and JSON API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/api/stats", s.handleStats)
	r.Get("/api/knowledge", s.handleKnowledgeList)
	r.Get("/api/knowledge/{id}", s.handleKnowledgeDetail)
	r.Get("/api/sessions", s.handleSessions)
	r.Get("/api/graph", s.handleGraph)

	webRoot, err := fs.Sub(webFiles, "web")
	if err != nil {
		s.Log.Warn().Err(err).Msg("embedded dashboard assets unavailable")
	} else {
		r.Handle("/*", http.FileServer(http.FS(webRoot)))
	}
	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	stats, err := timeline.ComputeStats(r.Context(), s.Store, s.MemoryDir, project, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleKnowledgeList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	project := q.Get("project")
	knowledgeType := q.Get("type")
	text := q.Get("q")

	page := 1
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 1 {
		page = p
	}
	limit := defaultKnowledgeLimit
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if limit > maxKnowledgeLimit {
		limit = maxKnowledgeLimit
	}

	items, err := s.Store.ListKnowledge(r.Context(), store.KnowledgeFilter{
		Project: project, Type: model.KnowledgeType(knowledgeType), Status: model.KnowledgeActive,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if text != "" {
		items = filterByText(items, text)
	}

	start := (page - 1) * limit
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	writeJSON(w, map[string]interface{}{
		"page": page, "limit": limit, "total": len(items), "items": items[start:end],
	})
}

func filterByText(items []*model.Knowledge, text string) []*model.Knowledge {
	var out []*model.Knowledge
	lower := strings.ToLower(text)
	for _, k := range items {
		if strings.Contains(strings.ToLower(k.Content), lower) || strings.Contains(strings.ToLower(k.Context), lower) {
			out = append(out, k)
		}
	}
	return out
}

func (s *Server) handleKnowledgeDetail(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	k, err := s.Store.GetKnowledge(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	versions, err := s.historyChain(r.Context(), k)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	relations, err := s.Store.RelationsFor(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]interface{}{"item": k, "versions": versions, "relations": relations})
}

var knowledgeStatuses = []model.KnowledgeStatus{
	model.KnowledgeActive, model.KnowledgeSuperseded, model.KnowledgeConsolidated,
	model.KnowledgeArchived, model.KnowledgePurged, model.KnowledgeDeleted,
}

// historyChain mirrors the walk the tool dispatch facade does for
// memory_history: forward by superseded_by, backward by scanning for
// predecessors, bounded so a corrupt chain cannot spin forever.
func (s *Server) historyChain(ctx context.Context, start *model.Knowledge) ([]*model.Knowledge, error) {
	visited := map[int64]bool{start.ID: true}
	chain := []*model.Knowledge{start}

	cur := start
	for cur.SupersededBy != nil && !visited[*cur.SupersededBy] {
		next, err := s.Store.GetKnowledge(ctx, *cur.SupersededBy)
		if err != nil {
			break
		}
		visited[next.ID] = true
		chain = append(chain, next)
		cur = next
	}

	var universe []*model.Knowledge
	for _, status := range knowledgeStatuses {
		items, err := s.Store.ListKnowledge(ctx, store.KnowledgeFilter{Project: start.Project, Status: status})
		if err != nil {
			return nil, err
		}
		universe = append(universe, items...)
	}
	const maxRounds = 64
	for round := 0; round < maxRounds; round++ {
		changed := false
		for _, k := range universe {
			if visited[k.ID] || k.SupersededBy == nil || !visited[*k.SupersededBy] {
				continue
			}
			visited[k.ID] = true
			chain = append(chain, k)
			changed = true
		}
		if !changed {
			break
		}
	}
	sort.Slice(chain, func(i, j int) bool { return chain[i].CreatedAt.After(chain[j].CreatedAt) })
	return chain, nil
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	project := q.Get("project")
	limit := 20
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		limit = l
	}
	sessions, err := s.Store.ListSessions(r.Context(), project, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, sessions)
}

// handleGraph returns the top graphTopN active items by recall_count desc,
// created_at desc, along with every relation whose both endpoints fall in
// that set.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	items, err := s.Store.ListKnowledge(r.Context(), store.KnowledgeFilter{Project: project, Status: model.KnowledgeActive})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].RecallCount != items[j].RecallCount {
			return items[i].RecallCount > items[j].RecallCount
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if len(items) > graphTopN {
		items = items[:graphTopN]
	}

	inSet := make(map[int64]bool, len(items))
	for _, k := range items {
		inSet[k.ID] = true
	}
	var relations []*model.Relation
	for id := range inSet {
		rels, err := s.Store.RelationsFor(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		for _, rel := range rels {
			if inSet[rel.FromID] && inSet[rel.ToID] {
				relations = append(relations, rel)
			}
		}
	}
	writeJSON(w, map[string]interface{}{"nodes": items, "edges": relations})
}
