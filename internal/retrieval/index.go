package retrieval

import (
	"context"
	"fmt"
	"sort"
)

// Hit is one search result.
type Hit struct {
	Chunk    string
	Position int
	Score    float32
}

// Index is an in-memory vector index over a fixed set of chunks. It is read-only after
// NewIndex returns and safe for concurrent searches.
type Index struct {
	emb     Embedder
	chunks  []string
	vectors [][]float32
}

func NewIndex(ctx context.Context, emb Embedder, chunks []string) (*Index, error) {
	vectors, err := emb.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	return &Index{emb: emb, chunks: chunks, vectors: vectors}, nil
}

func (ix *Index) Len() int { return len(ix.chunks) }

// Search returns up to k chunks ordered by cosine similarity to query, best first.
// Ties keep chunk order.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 || len(ix.chunks) == 0 {
		return nil, nil
	}
	q, err := ix.emb.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits := make([]Hit, len(ix.chunks))
	for i, v := range ix.vectors {
		if len(v) != len(q) {
			return nil, fmt.Errorf("dimension mismatch: chunk %d has %d, query has %d", i, len(v), len(q))
		}
		hits[i] = Hit{Chunk: ix.chunks[i], Position: i, Score: cosine(q, v)}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// MostRelevant chunks text, indexes it and returns the chunk closest to the whole text.
// When nothing can be retrieved it falls back to the first maxFallback runes.
func MostRelevant(ctx context.Context, emb Embedder, text string, maxFallback int) string {
	fallback := Head(text, maxFallback)
	chunks := Split(text, DefaultChunkSize, DefaultChunkOverlap)
	if len(chunks) == 0 {
		return fallback
	}
	ix, err := NewIndex(ctx, emb, chunks)
	if err != nil {
		return fallback
	}
	hits, err := ix.Search(ctx, text, 1)
	if err != nil || len(hits) == 0 || hits[0].Chunk == "" {
		return fallback
	}
	return hits[0].Chunk
}
