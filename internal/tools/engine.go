package tools

import (
	"github.com/rs/zerolog"

	"github.com/claude-memory/memoryd/internal/config"
	"github.com/claude-memory/memoryd/internal/dedup"
	"github.com/claude-memory/memoryd/internal/embedder"
	"github.com/claude-memory/memoryd/internal/extractqueue"
	"github.com/claude-memory/memoryd/internal/retrieval"
	"github.com/claude-memory/memoryd/internal/store"
	"github.com/claude-memory/memoryd/internal/vectorindex"
)

// NewEngine assembles an Engine from its already-opened dependencies. It
// does no I/O itself; cmd/memoryd owns opening the store, vector index,
// and extraction queue, picking the embedder implementation, and deciding
// whether a summarization merger is available. merger may be nil.
func NewEngine(s *store.Store, vectors *vectorindex.Index, emb embedder.Embedder, pipeline *retrieval.Pipeline, queue *extractqueue.Queue, merger dedup.Merger, cfg *config.Config, log zerolog.Logger) *Engine {
	return &Engine{
		Store: s, Vectors: vectors, Embedder: emb, Pipeline: pipeline,
		Queue: queue, Merger: merger, Config: cfg, Log: log,
	}
}
