// Package vectorindex wraps an embedded cosine-space vector store behind
// the narrow upsert/query/delete contract the semantic retrieval tier
// needs. The index is optional: every failure is logged and swallowed by
// the caller, never propagated as a hard error, since the engine must
// remain useful with the lexical, fuzzy and graph tiers alone.
package vectorindex

import (
	"context"
	"fmt"
	"strconv"

	chromem "github.com/philippgille/chromem-go"
)

const collectionName = "knowledge"

// Match is one semantic hit, ranked by cosine similarity (1.0 = identical).
type Match struct {
	KnowledgeID int64
	Similarity  float32
}

// Index is a thin, typed wrapper over a single chromem-go collection keyed
// by knowledge item id. Embeddings are supplied by the caller (internal/
// embedder); the index never computes its own.
type Index struct {
	collection *chromem.Collection
}

// passthroughEmbeddingFunc satisfies chromem's required embedding function
// without ever being called in practice: every document we add carries a
// precomputed Embedding, which chromem uses as-is and skips this callback
// for. It only fires if a caller queries by raw text instead of vector,
// which this package's API does not expose.
func passthroughEmbeddingFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("vectorindex: text-based embedding callback invoked unexpectedly")
}

// Open creates (or loads) a persistent chromem-go database rooted at dir
// and returns the single collection the engine uses for all projects,
// partitioned by the project field in each document's metadata.
func Open(dir string) (*Index, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector index at %s: %w", dir, err)
	}
	coll, err := db.GetOrCreateCollection(collectionName, nil, passthroughEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", collectionName, err)
	}
	return &Index{collection: coll}, nil
}

// Upsert inserts or replaces the vector for a knowledge item. chromem has
// no native upsert, so a stale entry is deleted first and swallowed if
// absent.
func (idx *Index) Upsert(ctx context.Context, id int64, embedding []float32, project string) error {
	key := strconv.FormatInt(id, 10)
	_ = idx.collection.Delete(ctx, nil, nil, key)

	doc := chromem.Document{
		ID:        key,
		Embedding: embedding,
		Metadata:  map[string]string{"project": project},
	}
	if err := idx.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("upsert vector for knowledge %d: %w", id, err)
	}
	return nil
}

// Query returns the topK nearest neighbors to embedding, optionally
// restricted to a single project.
func (idx *Index) Query(ctx context.Context, embedding []float32, topK int, project string) ([]Match, error) {
	var where map[string]string
	if project != "" {
		where = map[string]string{"project": project}
	}

	n := topK
	if count := idx.collection.Count(); count < n {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	results, err := idx.collection.QueryEmbedding(ctx, embedding, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query vector index: %w", err)
	}

	out := make([]Match, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Match{KnowledgeID: id, Similarity: r.Similarity})
	}
	return out, nil
}

// Delete removes a knowledge item's vector, called when it transitions out
// of active status.
func (idx *Index) Delete(ctx context.Context, id int64) error {
	key := strconv.FormatInt(id, 10)
	if err := idx.collection.Delete(ctx, nil, nil, key); err != nil {
		return fmt.Errorf("delete vector for knowledge %d: %w", id, err)
	}
	return nil
}
