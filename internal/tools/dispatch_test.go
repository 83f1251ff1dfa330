package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/claude-memory/memoryd/internal/config"
	"github.com/claude-memory/memoryd/internal/embedder"
	"github.com/claude-memory/memoryd/internal/extractqueue"
	"github.com/claude-memory/memoryd/internal/retrieval"
	"github.com/claude-memory/memoryd/internal/store"
	"github.com/claude-memory/memoryd/internal/vectorindex"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	log := zerolog.Nop()

	s, err := store.Open(context.Background(), filepath.Join(dir, "memory.db"), filepath.Join(dir, "memory.db.lock"), log)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	vectors, err := vectorindex.Open(filepath.Join(dir, "vectors"))
	if err != nil {
		t.Fatalf("open vector index: %v", err)
	}
	queue, err := extractqueue.Open(filepath.Join(dir, "extract"))
	if err != nil {
		t.Fatalf("open extract queue: %v", err)
	}

	var emb embedder.Embedder = embedder.Noop{}
	pipeline := &retrieval.Pipeline{
		Lexical:  &retrieval.LexicalTier{Store: s},
		Semantic: &retrieval.SemanticTier{Embedder: emb, Index: vectors, Store: s},
		Fuzzy:    &retrieval.FuzzyTier{Store: s},
		Graph:    &retrieval.GraphTier{Store: s},
		Store:    s,
		HalfLife: 90 * 24 * time.Hour,
		Log:      log,
	}
	cfg := &config.Config{MemoryDir: dir, DecayHalfLifeDays: 90}

	return NewEngine(s, vectors, emb, pipeline, queue, nil, cfg, log)
}

func args(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return b
}

func TestDispatchSaveThenRecall(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	resp := e.Dispatch(ctx, Request{Tool: ToolMemorySave, RequestID: "r1", Args: args(t, SaveArgs{
		SessionID: "s1", Content: "use TLS 1.3 for all internal services", Project: "infra",
	})})
	if !resp.Success {
		t.Fatalf("save failed: %s", resp.Error)
	}
	if resp.RequestID != "r1" {
		t.Errorf("expected request id stamped onto response, got %q", resp.RequestID)
	}
	var saved SaveResult
	if err := json.Unmarshal([]byte(resp.Result), &saved); err != nil {
		t.Fatalf("unmarshal save result: %v", err)
	}
	if saved.ID == 0 {
		t.Fatalf("expected a nonzero id")
	}

	recallResp := e.Dispatch(ctx, Request{Tool: ToolMemoryRecall, Args: args(t, RecallArgs{
		Query: "TLS internal services", Project: "infra",
	})})
	if !recallResp.Success {
		t.Fatalf("recall failed: %s", recallResp.Error)
	}
	if recallResp.Result == "" {
		t.Fatalf("expected a non-empty recall result")
	}
}

func TestDispatchSaveDedupesNearDuplicate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	first := e.Dispatch(ctx, Request{Tool: ToolMemorySave, Args: args(t, SaveArgs{
		SessionID: "s1", Content: "rotate API keys every ninety days across all services", Project: "sec",
	})})
	if !first.Success {
		t.Fatalf("first save failed: %s", first.Error)
	}
	var firstResult SaveResult
	if err := json.Unmarshal([]byte(first.Result), &firstResult); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	second := e.Dispatch(ctx, Request{Tool: ToolMemorySave, Args: args(t, SaveArgs{
		SessionID: "s1", Content: "rotate API keys every ninety days across all services", Project: "sec",
	})})
	if !second.Success {
		t.Fatalf("second save failed: %s", second.Error)
	}
	var secondResult SaveResult
	if err := json.Unmarshal([]byte(second.Result), &secondResult); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !secondResult.Deduplicated {
		t.Errorf("expected second identical save to be deduplicated")
	}
	if secondResult.ID != firstResult.ID {
		t.Errorf("expected deduplicated save to point at the original id %d, got %d", firstResult.ID, secondResult.ID)
	}
}

func TestDispatchSaveRejectsEmptyContent(t *testing.T) {
	e := newTestEngine(t)
	resp := e.Dispatch(context.Background(), Request{Tool: ToolMemorySave, Args: args(t, SaveArgs{SessionID: "s1"})})
	if resp.Success {
		t.Fatalf("expected empty content to be rejected")
	}
}

func TestDispatchForgetThenDeleteLifecycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	saveResp := e.Dispatch(ctx, Request{Tool: ToolMemorySave, Args: args(t, SaveArgs{
		SessionID: "s1", Content: "the worker pool restarts after every deploy", Project: "ops",
	})})
	var saved SaveResult
	if err := json.Unmarshal([]byte(saveResp.Result), &saved); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	forgetResp := e.Dispatch(ctx, Request{Tool: ToolMemoryForget, Args: args(t, ForgetArgs{ID: saved.ID})})
	if !forgetResp.Success {
		t.Fatalf("forget failed: %s", forgetResp.Error)
	}

	k, err := e.Store.GetKnowledge(ctx, saved.ID)
	if err != nil {
		t.Fatalf("get knowledge: %v", err)
	}
	if string(k.Status) != "archived" {
		t.Errorf("expected forgotten item archived, got %s", k.Status)
	}

	deleteResp := e.Dispatch(ctx, Request{Tool: ToolMemoryDelete, Args: args(t, DeleteArgs{ID: saved.ID})})
	if !deleteResp.Success {
		t.Fatalf("delete failed: %s", deleteResp.Error)
	}
	k, err = e.Store.GetKnowledge(ctx, saved.ID)
	if err != nil {
		t.Fatalf("get knowledge: %v", err)
	}
	if string(k.Status) != "deleted" {
		t.Errorf("expected deleted item status deleted, got %s", k.Status)
	}

	// A second delete on an already-deleted item is an idempotent no-op,
	// not an error.
	secondDelete := e.Dispatch(ctx, Request{Tool: ToolMemoryDelete, Args: args(t, DeleteArgs{ID: saved.ID})})
	if !secondDelete.Success {
		t.Fatalf("expected idempotent delete to succeed, got %s", secondDelete.Error)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	e := newTestEngine(t)
	resp := e.Dispatch(context.Background(), Request{Tool: "memory_not_a_real_tool"})
	if resp.Success {
		t.Fatalf("expected unknown tool to fail")
	}
}
