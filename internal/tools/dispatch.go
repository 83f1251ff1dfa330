package tools

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/claude-memory/memoryd/internal/config"
	"github.com/claude-memory/memoryd/internal/dedup"
	"github.com/claude-memory/memoryd/internal/embedder"
	"github.com/claude-memory/memoryd/internal/extractqueue"
	"github.com/claude-memory/memoryd/internal/retrieval"
	"github.com/claude-memory/memoryd/internal/store"
	"github.com/claude-memory/memoryd/internal/vectorindex"
)

// Engine wires every core component behind the tool dispatch facade. It is
// the single object cmd/memoryd's request loop holds.
type Engine struct {
	Store    *store.Store
	Vectors  *vectorindex.Index // nil when the vector tier is disabled
	Embedder embedder.Embedder
	Pipeline *retrieval.Pipeline
	Queue    *extractqueue.Queue
	Merger   dedup.Merger // nil when no summarization backend is configured
	Config   *config.Config
	Log      zerolog.Logger
}

// Dispatch routes a request to its handler, recovering every handler error
// into a textual Response rather than letting it escape to the transport
// (see the error handling design's side-effect policy).
func (e *Engine) Dispatch(ctx context.Context, req Request) Response {
	var resp Response
	switch req.Tool {
	case ToolMemoryRecall:
		resp = e.handleRecall(ctx, req.Args)
	case ToolMemorySave:
		resp = e.handleSave(ctx, req.Args)
	case ToolMemoryUpdate:
		resp = e.handleUpdate(ctx, req.Args)
	case ToolMemoryTimeline:
		resp = e.handleTimeline(ctx, req.Args)
	case ToolMemoryStats:
		resp = e.handleStats(ctx, req.Args)
	case ToolMemoryConsolidate:
		resp = e.handleConsolidate(ctx, req.Args)
	case ToolMemoryExport:
		resp = e.handleExport(ctx, req.Args)
	case ToolMemoryForget:
		resp = e.handleForget(ctx, req.Args)
	case ToolMemoryHistory:
		resp = e.handleHistory(ctx, req.Args)
	case ToolMemoryDelete:
		resp = e.handleDelete(ctx, req.Args)
	case ToolMemoryRelate:
		resp = e.handleRelate(ctx, req.Args)
	case ToolMemorySearchByTag:
		resp = e.handleSearchByTag(ctx, req.Args)
	case ToolMemoryExtractSession:
		resp = e.handleExtractSession(ctx, req.Args)
	case ToolMemoryObserve:
		resp = e.handleObserve(ctx, req.Args)
	case ToolSelfErrorLog:
		resp = e.handleErrorLog(ctx, req.Args)
	case ToolSelfInsight:
		resp = e.handleInsight(ctx, req.Args)
	case ToolSelfRules:
		resp = e.handleRules(ctx, req.Args)
	case ToolSelfPatterns:
		resp = e.handlePatterns(ctx, req.Args)
	case ToolSelfReflect:
		resp = e.handleReflect(ctx, req.Args)
	case ToolSelfRulesContext:
		resp = e.handleRulesContext(ctx, req.Args)
	default:
		resp = fail(fmt.Errorf("unknown tool: %s", req.Tool))
	}
	resp.RequestID = req.RequestID
	if !resp.Success {
		e.Log.Warn().Str("tool", req.Tool).Str("error", resp.Error).Msg("tool call failed")
	}
	return resp
}
