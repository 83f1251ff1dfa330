package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/claude-memory/memoryd/internal/config"
	"github.com/claude-memory/memoryd/internal/dedup"
	"github.com/claude-memory/memoryd/internal/embedder"
	"github.com/claude-memory/memoryd/internal/extractqueue"
	"github.com/claude-memory/memoryd/internal/retrieval"
	"github.com/claude-memory/memoryd/internal/store"
	"github.com/claude-memory/memoryd/internal/summarize"
	"github.com/claude-memory/memoryd/internal/tools"
	"github.com/claude-memory/memoryd/internal/vectorindex"
)

// bootstrap opens every component cmd/memoryd's subcommands share: the
// store, the vector index, the embedder, the retrieval pipeline, the
// extraction queue, and a rotating-file logger. Callers are responsible
// for closing the returned store's underlying connection via cfg's own
// lifecycle (the store has no separate Close; the process exit handles
// that).
func bootstrap(ctx context.Context) (*tools.Engine, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, nil, fmt.Errorf("ensure memory directories: %w", err)
	}

	log := newLogger(cfg)

	s, err := store.Open(ctx, cfg.DBPath(), cfg.LockPath(), log)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	vectors, err := vectorindex.Open(cfg.VectorIndexDir())
	if err != nil {
		return nil, nil, fmt.Errorf("open vector index: %w", err)
	}

	var emb embedder.Embedder = embedder.Noop{}
	if cfg.EmbeddingModel != "" {
		emb = embedder.NewHTTPClient(cfg.EmbeddingURL, cfg.EmbeddingModel, log)
	}

	pipeline := &retrieval.Pipeline{
		Lexical:  &retrieval.LexicalTier{Store: s},
		Semantic: &retrieval.SemanticTier{Embedder: emb, Index: vectors, Store: s},
		Fuzzy:    &retrieval.FuzzyTier{Store: s},
		Graph:    &retrieval.GraphTier{Store: s},
		Store:    s,
		HalfLife: cfg.DecayHalfLife(),
		Log:      log,
	}

	queue, err := extractqueue.Open(cfg.ExtractQueueDir())
	if err != nil {
		return nil, nil, fmt.Errorf("open extraction queue: %w", err)
	}

	merger := newMerger(log)

	engine := tools.NewEngine(s, vectors, emb, pipeline, queue, merger, cfg, log)
	return engine, cfg, nil
}

// newMerger builds the optional consolidation-sweep summarizer. Absent an
// ANTHROPIC_API_KEY, consolidation falls back to keeping the longest
// original content, which is a fully supported mode, not a degraded one.
func newMerger(log zerolog.Logger) dedup.Merger {
	claude, err := summarize.New("")
	if err != nil {
		log.Info().Msg("consolidation merger disabled: no ANTHROPIC_API_KEY set")
		return nil
	}
	return claude
}

// newLogger writes structured JSON logs to a size- and age-rotated file
// under cfg's log directory, matching the daemon's prior plain-stderr
// logging with rotation so a long-running process doesn't grow an
// unbounded log file.
func newLogger(cfg *config.Config) zerolog.Logger {
	writer := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir(), "memoryd.log"),
		MaxSize:    20, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	return zerolog.New(writer).With().Timestamp().Logger()
}

// stderrLogger is used by subcommands that print human-readable output
// directly (migrate, stats) rather than running as a long-lived daemon.
func stderrLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}
