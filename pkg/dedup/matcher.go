package dedup

import (
	"math"

	"github.com/oculairmedia/graphiti-sub006/pkg/types"
)

// Default similarity thresholds. The online path uses the strict defaults;
// the bulk engine loosens the name threshold for in-batch collapsing.
const (
	DefaultNameThreshold      = 0.95
	DefaultEmbeddingThreshold = 0.92
	BulkNameThreshold         = 0.8
)

// MatchConfig carries the thresholds one matching pass operates under.
type MatchConfig struct {
	NameThreshold      float64
	EmbeddingThreshold float64
}

// DefaultMatchConfig returns the strict thresholds used by the online
// resolution path and the reconciler.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		NameThreshold:      DefaultNameThreshold,
		EmbeddingThreshold: DefaultEmbeddingThreshold,
	}
}

// TokenOverlap returns the Jaccard overlap of the whole-word token sets of
// two normalized names.
func TokenOverlap(a, b string) float64 {
	tokensA := Tokens(a)
	tokensB := Tokens(b)
	if len(tokensA) == 0 && len(tokensB) == 0 {
		return 1.0
	}
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0.0
	}

	setA := make(map[string]bool, len(tokensA))
	for _, t := range tokensA {
		setA[t] = true
	}
	setB := make(map[string]bool, len(tokensB))
	for _, t := range tokensB {
		setB[t] = true
	}

	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// IsCompoundExtension reports whether one normalized name is a strict
// prefix or suffix extension of the other by one or more whole tokens
// ("claude" vs "claude code"). Compounds name different referents and must
// never be merged, regardless of token overlap or embedding similarity.
func IsCompoundExtension(a, b string) bool {
	tokensA := Tokens(a)
	tokensB := Tokens(b)
	if len(tokensA) == len(tokensB) {
		return false
	}
	shorter, longer := tokensA, tokensB
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) == 0 {
		return false
	}
	return tokensEqual(shorter, longer[:len(shorter)]) ||
		tokensEqual(shorter, longer[len(longer)-len(shorter):])
}

func tokensEqual(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CosineSimilarity returns the cosine of the angle between two embedding
// vectors, or 0 when either is empty or they disagree on dimension.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// IsCandidateDuplicate decides whether two nodes plausibly denote the same
// referent. Exact normalized-name equality is decisive; otherwise the names
// must clear the token-overlap threshold, must not be compound extensions
// of one another, and, when both carry embeddings, must also clear the
// embedding threshold. A missing embedding degrades to name-only matching
// rather than disqualifying the pair.
func IsCandidateDuplicate(a, b *types.EntityNode, cfg MatchConfig) bool {
	normA := a.NormalizedName
	if normA == "" {
		normA = Normalize(a.Name)
	}
	normB := b.NormalizedName
	if normB == "" {
		normB = Normalize(b.Name)
	}

	if normA == normB && normA != "" {
		return true
	}
	if IsCompoundExtension(normA, normB) {
		return false
	}
	if TokenOverlap(normA, normB) < cfg.NameThreshold {
		return false
	}
	if len(a.NameEmbedding) > 0 && len(b.NameEmbedding) > 0 {
		return CosineSimilarity(a.NameEmbedding, b.NameEmbedding) >= cfg.EmbeddingThreshold
	}
	return true
}
