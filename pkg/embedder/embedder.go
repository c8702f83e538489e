// Package embedder generates name embeddings for similarity matching. A
// failed or absent embedder is never fatal: callers degrade to name-only
// matching.
package embedder

import (
	"context"
)

// Client generates dense vectors for entity names.
type Client interface {
	// Embed generates one embedding per input text, index-aligned.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedSingle generates an embedding for one text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	// Dimensions returns the vector dimensionality this client produces.
	Dimensions() int
	Close() error
}

// NopEmbedder produces no embeddings. Resolution degrades to name-only
// matching when it is configured.
type NopEmbedder struct{}

// Embed returns a nil vector per input.
func (NopEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

// EmbedSingle returns no embedding.
func (NopEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}

// Dimensions returns 0.
func (NopEmbedder) Dimensions() int { return 0 }

// Close is a no-op.
func (NopEmbedder) Close() error { return nil }
