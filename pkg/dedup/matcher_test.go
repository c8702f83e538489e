package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oculairmedia/graphiti-sub006/pkg/types"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase", "Claude", "claude"},
		{"collapse whitespace", "  Claude   Code  ", "claude code"},
		{"underscores", "claude_code", "claude code"},
		{"parenthetical qualifier", "Alice (engineer)", "alice"},
		{"role suffix", "deploy-bot (bot)", "deploy bot"},
		{"punctuation", "O'Brien & Sons, Inc.", "o'brien sons inc"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestTokenOverlap(t *testing.T) {
	assert.Equal(t, 1.0, TokenOverlap("claude code", "code claude"))
	assert.Equal(t, 0.5, TokenOverlap("claude", "claude code"))
	assert.Equal(t, 0.0, TokenOverlap("claude", "gemini"))
	assert.Equal(t, 1.0, TokenOverlap("", ""))
	assert.Equal(t, 0.0, TokenOverlap("claude", ""))
}

func TestIsCompoundExtension(t *testing.T) {
	tests := []struct {
		a, b     string
		expected bool
	}{
		{"claude", "claude code", true},
		{"claude code", "claude", true},
		{"github", "github actions", true},
		{"actions", "github actions", true},
		{"claude", "claude", false},
		{"claude", "gemini code", false},
		{"claude code", "code claude max", false},
		{"", "claude", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, IsCompoundExtension(tt.a, tt.b),
			"IsCompoundExtension(%q, %q)", tt.a, tt.b)
	}
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity(nil, []float32{1}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{1}))
}

func node(name string, embedding []float32) *types.EntityNode {
	return &types.EntityNode{
		Uuid:           "test-" + name,
		GroupID:        "group-1",
		Name:           name,
		NormalizedName: Normalize(name),
		NameEmbedding:  embedding,
	}
}

func TestIsCandidateDuplicateExactMatch(t *testing.T) {
	cfg := DefaultMatchConfig()
	assert.True(t, IsCandidateDuplicate(node("Claude", nil), node("claude", nil), cfg))
	assert.True(t, IsCandidateDuplicate(node("CLAUDE", nil), node("Claude", nil), cfg))
}

func TestIsCandidateDuplicateCompoundNeverMerges(t *testing.T) {
	cfg := DefaultMatchConfig()

	// Identical embeddings must not override the compound exclusion.
	embedding := []float32{0.5, 0.5, 0.7}
	a := node("Claude", embedding)
	b := node("Claude Code", embedding)
	assert.False(t, IsCandidateDuplicate(a, b, cfg))
	assert.False(t, IsCandidateDuplicate(b, a, cfg))

	assert.False(t, IsCandidateDuplicate(node("GitHub", nil), node("GitHub Actions", nil), cfg))
}

func TestIsCandidateDuplicateEmbeddingGate(t *testing.T) {
	cfg := DefaultMatchConfig()

	// Same token set, near-identical embeddings: duplicate.
	a := node("claude code", []float32{1, 0, 0})
	b := node("code claude", []float32{0.99, 0.01, 0})
	assert.True(t, IsCandidateDuplicate(a, b, cfg))

	// Same token set but dissimilar embeddings: distinct.
	c := node("code claude", []float32{0, 1, 0})
	assert.False(t, IsCandidateDuplicate(a, c, cfg))

	// Missing embedding degrades to name-only, not to rejection.
	d := node("code claude", nil)
	assert.True(t, IsCandidateDuplicate(a, d, cfg))
}

func TestIsCandidateDuplicateBelowNameThreshold(t *testing.T) {
	cfg := DefaultMatchConfig()
	assert.False(t, IsCandidateDuplicate(node("acme corp", nil), node("acme inc", nil), cfg))
}

func TestBulkThresholdIsLooser(t *testing.T) {
	cfg := MatchConfig{NameThreshold: BulkNameThreshold, EmbeddingThreshold: DefaultEmbeddingThreshold}

	a := node("acme corporation international", nil)
	b := node("acme corporation worldwide international", nil)
	// Shares 3 of 4 distinct tokens (overlap 0.75) and the shorter name is
	// not a contiguous sub-sequence, so only thresholds decide.
	assert.False(t, IsCandidateDuplicate(a, b, cfg))

	c := node("acme worldwide corporation international", nil)
	d := node("acme corporation international worldwide", nil)
	assert.True(t, IsCandidateDuplicate(c, d, cfg))
}
