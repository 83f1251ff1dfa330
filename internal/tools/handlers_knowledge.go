package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/claude-memory/memoryd/internal/dedup"
	"github.com/claude-memory/memoryd/internal/model"
	"github.com/claude-memory/memoryd/internal/retrieval"
	"github.com/claude-memory/memoryd/internal/sanitize"
	"github.com/claude-memory/memoryd/internal/store"
)

// upsertVector best-effort embeds and upserts content into the vector
// index; any failure is logged and swallowed so the write still succeeds
// with the lexical and fuzzy tiers alone (4.D's failure policy).
func (e *Engine) upsertVector(ctx context.Context, id int64, content, project string) {
	if e.Vectors == nil || e.Embedder == nil || !e.Embedder.Available() {
		return
	}
	vecs, err := e.Embedder.Embed(ctx, []string{content})
	if err != nil || len(vecs) == 0 {
		e.Log.Warn().Err(err).Int64("id", id).Msg("embed for vector upsert failed")
		return
	}
	if err := e.Vectors.Upsert(ctx, id, vecs[0], project); err != nil {
		e.Log.Warn().Err(err).Int64("id", id).Msg("vector upsert failed")
	}
}

func (e *Engine) deleteVector(ctx context.Context, id int64) {
	if e.Vectors == nil {
		return
	}
	if err := e.Vectors.Delete(ctx, id); err != nil {
		e.Log.Warn().Err(err).Int64("id", id).Msg("vector delete failed")
	}
}

// SaveArgs is memory_save's argument shape.
type SaveArgs struct {
	SessionID  string   `json:"session_id"`
	Content    string   `json:"content"`
	Context    string   `json:"context,omitempty"`
	Type       string   `json:"type,omitempty"`
	Project    string   `json:"project,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Branch     string   `json:"branch,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Source     string   `json:"source,omitempty"`
}

// SaveResult is memory_save's result shape.
type SaveResult struct {
	Saved        bool  `json:"saved"`
	ID           int64 `json:"id"`
	Deduplicated bool  `json:"deduplicated"`
	Redacted     bool  `json:"redacted"`
}

func (e *Engine) handleSave(ctx context.Context, raw json.RawMessage) Response {
	var args SaveArgs
	if err := decodeArgs(raw, &args); err != nil {
		return fail(err)
	}
	if args.Content == "" {
		return fail(fmt.Errorf("content is required"))
	}
	if args.Project == "" {
		args.Project = "general"
	}
	if args.Type == "" {
		args.Type = string(model.TypeFact)
	}

	redacted := sanitize.Fields(&args.Content, &args.Context)
	now := time.Now().UTC()

	var result SaveResult
	err := e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		probe, err := dedup.Probe(ctx, e.Store, tx, args.Content, args.Type, args.Project, now)
		if err != nil {
			return err
		}
		if probe.Duplicate {
			result = SaveResult{Saved: true, ID: probe.ExistingID, Deduplicated: true, Redacted: redacted}
			return nil
		}

		confidence := 1.0
		if args.Confidence != nil {
			confidence = *args.Confidence
		}
		source := args.Source
		if source == "" {
			source = "explicit"
		}
		k := &model.Knowledge{
			SessionID: args.SessionID, Type: model.KnowledgeType(args.Type), Content: args.Content,
			Context: args.Context, Project: args.Project, Tags: args.Tags, Confidence: confidence,
			Source: source, CreatedAt: now, Branch: args.Branch,
		}
		id, err := e.Store.CreateKnowledge(ctx, tx, k)
		if err != nil {
			return err
		}
		result = SaveResult{Saved: true, ID: id, Redacted: redacted}
		return nil
	})
	if err != nil {
		return fail(err)
	}
	if !result.Deduplicated {
		e.upsertVector(ctx, result.ID, args.Content, args.Project)
	}
	return ok(result)
}

// RecallArgs is memory_recall's argument shape.
type RecallArgs struct {
	Query   string `json:"query"`
	Project string `json:"project,omitempty"`
	Type    string `json:"type,omitempty"`
	Branch  string `json:"branch,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func (e *Engine) handleRecall(ctx context.Context, raw json.RawMessage) Response {
	var args RecallArgs
	if err := decodeArgs(raw, &args); err != nil {
		return fail(err)
	}
	if args.Query == "" {
		return fail(fmt.Errorf("query is required"))
	}
	q := retrieval.Query{
		Text: args.Query, Project: args.Project, Type: model.KnowledgeType(args.Type),
		Branch: args.Branch, Limit: args.Limit, Detail: retrieval.Detail(args.Detail),
	}
	result, err := e.Pipeline.Run(ctx, q, time.Now().UTC())
	if err != nil {
		return fail(err)
	}
	return ok(result)
}

// UpdateArgs is memory_update's argument shape.
type UpdateArgs struct {
	Find       string `json:"find"`
	NewContent string `json:"new_content"`
	Project    string `json:"project,omitempty"`
	Type       string `json:"type,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Context    string `json:"context,omitempty"`
}

// UpdateResult is memory_update's result shape.
type UpdateResult struct {
	Updated    bool  `json:"updated"`
	PreviousID int64 `json:"previous_id,omitempty"`
	NewID      int64 `json:"new_id"`
}

func (e *Engine) handleUpdate(ctx context.Context, raw json.RawMessage) Response {
	var args UpdateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return fail(err)
	}
	if args.Find == "" || args.NewContent == "" {
		return fail(fmt.Errorf("find and new_content are required"))
	}
	sanitize.Fields(&args.NewContent, &args.Context)

	hits, err := e.Store.LexicalSearch(ctx, `"`+args.Find+`"`, args.Project, 1)
	if err != nil {
		return fail(err)
	}
	var previous *model.Knowledge
	if len(hits) > 0 {
		previous = hits[0].Knowledge
	}

	knowledgeType := model.KnowledgeType(args.Type)
	if knowledgeType == "" {
		if previous != nil {
			knowledgeType = previous.Type
		} else {
			knowledgeType = model.TypeFact
		}
	}

	now := time.Now().UTC()
	var newID int64
	err = e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		k := &model.Knowledge{
			SessionID: args.SessionID, Type: knowledgeType, Content: args.NewContent,
			Context: args.Context, Project: args.Project, CreatedAt: now, Source: "explicit", Confidence: 1.0,
		}
		id, err := e.Store.CreateKnowledge(ctx, tx, k)
		if err != nil {
			return err
		}
		newID = id
		if previous != nil {
			return e.Store.TransitionKnowledge(ctx, tx, previous.ID, model.KnowledgeSuperseded, &id)
		}
		return nil
	})
	if err != nil {
		return fail(err)
	}

	e.upsertVector(ctx, newID, args.NewContent, args.Project)
	result := UpdateResult{Updated: true, NewID: newID}
	if previous != nil {
		result.PreviousID = previous.ID
		e.deleteVector(ctx, previous.ID)
	}
	return ok(result)
}

// ForgetArgs is memory_forget's argument shape: an explicit, manual move to
// archived, distinct from the automatic retention sweep.
type ForgetArgs struct {
	ID int64 `json:"id"`
}

func (e *Engine) handleForget(ctx context.Context, raw json.RawMessage) Response {
	var args ForgetArgs
	if err := decodeArgs(raw, &args); err != nil {
		return fail(err)
	}
	k, err := e.Store.GetKnowledge(ctx, args.ID)
	if err != nil {
		return fail(err)
	}
	if k.Status != model.KnowledgeActive {
		return ok(map[string]interface{}{"forgotten": false, "reason": fmt.Sprintf("item is %s, not active", k.Status)})
	}
	if err := e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		return e.Store.TransitionKnowledge(ctx, tx, args.ID, model.KnowledgeArchived, nil)
	}); err != nil {
		return fail(err)
	}
	e.deleteVector(ctx, args.ID)
	return ok(map[string]interface{}{"forgotten": true, "id": args.ID})
}

// DeleteArgs is memory_delete's argument shape.
type DeleteArgs struct {
	ID int64 `json:"id"`
}

func (e *Engine) handleDelete(ctx context.Context, raw json.RawMessage) Response {
	var args DeleteArgs
	if err := decodeArgs(raw, &args); err != nil {
		return fail(err)
	}
	k, err := e.Store.GetKnowledge(ctx, args.ID)
	if err != nil {
		return fail(err)
	}
	if k.Status == model.KnowledgeDeleted {
		return ok(map[string]interface{}{"deleted": false, "reason": "already deleted"})
	}
	if err := e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		return e.Store.TransitionKnowledge(ctx, tx, args.ID, model.KnowledgeDeleted, nil)
	}); err != nil {
		return fail(err)
	}
	e.deleteVector(ctx, args.ID)
	return ok(map[string]interface{}{"deleted": true, "id": args.ID})
}

var knowledgeStatuses = []model.KnowledgeStatus{
	model.KnowledgeActive, model.KnowledgeSuperseded, model.KnowledgeConsolidated,
	model.KnowledgeArchived, model.KnowledgePurged, model.KnowledgeDeleted,
}

// historyChain walks the version DAG rooted at id: forward by following
// superseded_by, backward by scanning for items whose superseded_by points
// into the set already found. Assumes a linear chain but always terminates,
// even on a corrupt or cyclic input (see spec's open question on this walk).
func (e *Engine) historyChain(ctx context.Context, id int64) ([]*model.Knowledge, error) {
	start, err := e.Store.GetKnowledge(ctx, id)
	if err != nil {
		return nil, err
	}
	visited := map[int64]bool{start.ID: true}
	chain := []*model.Knowledge{start}

	cur := start
	for cur.SupersededBy != nil && !visited[*cur.SupersededBy] {
		next, err := e.Store.GetKnowledge(ctx, *cur.SupersededBy)
		if err != nil {
			break
		}
		visited[next.ID] = true
		chain = append(chain, next)
		cur = next
	}

	var universe []*model.Knowledge
	for _, status := range knowledgeStatuses {
		items, err := e.Store.ListKnowledge(ctx, store.KnowledgeFilter{Project: start.Project, Status: status})
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

// HistoryArgs is memory_history's argument shape.
type HistoryArgs struct {
	ID int64 `json:"id"`
}

func (e *Engine) handleHistory(ctx context.Context, raw json.RawMessage) Response {
	var args HistoryArgs
	if err := decodeArgs(raw, &args); err != nil {
		return fail(err)
	}
	chain, err := e.historyChain(ctx, args.ID)
	if err != nil {
		return fail(err)
	}
	return ok(map[string]interface{}{"id": args.ID, "versions": chain})
}

var validRelationTypes = map[string]bool{
	string(model.RelationCausal): true, string(model.RelationSolution): true,
	string(model.RelationContext): true, string(model.RelationRelated): true,
	string(model.RelationContradicts): true,
}

// RelateArgs is memory_relate's argument shape.
type RelateArgs struct {
	FromID int64  `json:"from_id"`
	ToID   int64  `json:"to_id"`
	Type   string `json:"type"`
}

func (e *Engine) handleRelate(ctx context.Context, raw json.RawMessage) Response {
	var args RelateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return fail(err)
	}
	if !validRelationTypes[args.Type] {
		return fail(fmt.Errorf("invalid relation type: %s", args.Type))
	}
	now := time.Now().UTC()
	err := e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := e.Store.CreateRelation(ctx, tx, &model.Relation{
			FromID: args.FromID, ToID: args.ToID, Type: model.RelationType(args.Type), CreatedAt: now,
		})
		return err
	})
	if err != nil {
		return fail(err)
	}
	return ok(map[string]interface{}{"related": true, "from_id": args.FromID, "to_id": args.ToID, "type": args.Type})
}

// SearchByTagArgs is memory_search_by_tag's argument shape.
type SearchByTagArgs struct {
	Tag     string `json:"tag"`
	Project string `json:"project,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

func (e *Engine) handleSearchByTag(ctx context.Context, raw json.RawMessage) Response {
	var args SearchByTagArgs
	if err := decodeArgs(raw, &args); err != nil {
		return fail(err)
	}
	if args.Tag == "" {
		return fail(fmt.Errorf("tag is required"))
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 50
	}
	items, err := e.Store.ListKnowledge(ctx, store.KnowledgeFilter{Project: args.Project, Status: model.KnowledgeActive})
	if err != nil {
		return fail(err)
	}
	var matched []*model.Knowledge
	for _, k := range items {
		for _, tag := range k.Tags {
			if tag == args.Tag {
				matched = append(matched, k)
				break
			}
		}
		if len(matched) >= limit {
			break
		}
	}
	return ok(map[string]interface{}{"tag": args.Tag, "count": len(matched), "items": matched})
}

// ConsolidateArgs is memory_consolidate's argument shape.
type ConsolidateArgs struct {
	Project   string  `json:"project,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	DryRun    bool    `json:"dry_run,omitempty"`
}

func (e *Engine) handleConsolidate(ctx context.Context, raw json.RawMessage) Response {
	var args ConsolidateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return fail(err)
	}
	threshold := args.Threshold
	if threshold <= 0 {
		threshold = dedup.DefaultConsolidationThreshold
	}
	groups, err := dedup.Sweep(ctx, e.Store, e.Vectors, e.Merger, args.Project, threshold, args.DryRun, time.Now().UTC())
	if err != nil {
		return fail(err)
	}
	return ok(map[string]interface{}{"dry_run": args.DryRun, "groups": groups, "group_count": len(groups)})
}

// ExportArgs is memory_export's argument shape.
type ExportArgs struct {
	Project string `json:"project,omitempty"`
}

func (e *Engine) handleExport(ctx context.Context, raw json.RawMessage) Response {
	var args ExportArgs
	if err := decodeArgs(raw, &args); err != nil {
		return fail(err)
	}
	items, err := e.Store.ListKnowledge(ctx, store.KnowledgeFilter{Project: args.Project, Status: model.KnowledgeActive})
	if err != nil {
		return fail(err)
	}
	return ok(map[string]interface{}{"project": args.Project, "count": len(items), "items": items})
}

// ObserveArgs is memory_observe's argument shape.
type ObserveArgs struct {
	SessionID       string   `json:"session_id"`
	ToolName        string   `json:"tool_name"`
	ObservationType string   `json:"observation_type"`
	Summary         string   `json:"summary"`
	FilesAffected   []string `json:"files_affected,omitempty"`
	Project         string   `json:"project,omitempty"`
	Branch          string   `json:"branch,omitempty"`
}

func (e *Engine) handleObserve(ctx context.Context, raw json.RawMessage) Response {
	var args ObserveArgs
	if err := decodeArgs(raw, &args); err != nil {
		return fail(err)
	}
	if args.Summary == "" {
		return fail(fmt.Errorf("summary is required"))
	}
	sanitize.Fields(&args.Summary)
	now := time.Now().UTC()
	var id int64
	err := e.Store.WithTx(ctx, func(tx *sql.Tx) error {
		var e2 error
		id, e2 = e.Store.RecordObservation(ctx, tx, &model.Observation{
			SessionID: args.SessionID, ToolName: args.ToolName, ObservationType: args.ObservationType,
			Summary: args.Summary, FilesAffected: args.FilesAffected, Project: args.Project,
			Branch: args.Branch, CreatedAt: now,
		})
		return e2
	})
	if err != nil {
		return fail(err)
	}
	return ok(map[string]interface{}{"observed": true, "id": id})
}
