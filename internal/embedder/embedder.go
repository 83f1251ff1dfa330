// Package embedder turns text into vectors for the semantic retrieval tier.
// An embedder is entirely optional: when no EMBEDDING_MODEL is configured,
// the Noop implementation makes the semantic tier a silent no-op rather
// than a hard dependency.
package embedder

import "context"

// Embedder converts a batch of texts to their vector embeddings, one
// vector per input text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Available reports whether this embedder can actually produce
	// vectors, so callers can skip the semantic tier entirely instead of
	// calling Embed and discarding an always-empty result.
	Available() bool
}

// Noop is the embedder used when EMBEDDING_MODEL is unset. It always
// succeeds with zero vectors so callers never need a nil check.
type Noop struct{}

// Embed returns an empty vector for every input text.
func (Noop) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	return out, nil
}

// Available always reports false for Noop.
func (Noop) Available() bool { return false }
