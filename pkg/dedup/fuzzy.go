package dedup

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"
)

// Fuzzy-matching heuristics. Short or low-entropy names produce unreliable
// shingle sets, so they are gated out of fuzzy matching entirely.
const (
	nameEntropyThreshold = 1.5
	minNameLength        = 6
	minTokenCount        = 2
	minHashPermutations  = 32
	minHashBandSize      = 4
)

var shingleCache sync.Map

// nameEntropy approximates name specificity as Shannon entropy over its
// characters, spaces excluded.
func nameEntropy(normalizedName string) float64 {
	text := strings.ReplaceAll(normalizedName, " ", "")
	if text == "" {
		return 0.0
	}

	counts := make(map[rune]int)
	total := 0
	for _, r := range text {
		counts[r]++
		total++
	}

	var entropy float64
	for _, count := range counts {
		p := float64(count) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// HasHighEntropy reports whether a normalized name is specific enough for
// fuzzy matching. Names that fail the gate go straight to judgment instead.
func HasHighEntropy(normalizedName string) bool {
	if len(normalizedName) < minNameLength && len(Tokens(normalizedName)) < minTokenCount {
		return false
	}
	return nameEntropy(normalizedName) >= nameEntropyThreshold
}

// Shingles returns the character 3-grams of a normalized name with spaces
// removed. Results are cached per name.
func Shingles(normalizedName string) []string {
	if cached, ok := shingleCache.Load(normalizedName); ok {
		return cached.([]string)
	}

	cleaned := strings.ReplaceAll(normalizedName, " ", "")
	var result []string
	switch {
	case cleaned == "":
		result = []string{}
	case len(cleaned) < 3:
		result = []string{cleaned}
	default:
		result = make([]string, 0, len(cleaned)-2)
		for i := 0; i+3 <= len(cleaned); i++ {
			result = append(result, cleaned[i:i+3])
		}
	}

	shingleCache.Store(normalizedName, result)
	return result
}

func hashShingle(shingle string, seed int) uint64 {
	h := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", seed, shingle)))
	return binary.BigEndian.Uint64(h[:8])
}

// MinHashSignature computes the MinHash signature of a shingle set across
// the fixed permutation count.
func MinHashSignature(shingleSet []string) []uint64 {
	if len(shingleSet) == 0 {
		return nil
	}

	signature := make([]uint64, minHashPermutations)
	for seed := 0; seed < minHashPermutations; seed++ {
		minHash := uint64(math.MaxUint64)
		for _, shingle := range shingleSet {
			if h := hashShingle(shingle, seed); h < minHash {
				minHash = h
			}
		}
		signature[seed] = minHash
	}
	return signature
}

// LSHBandKeys splits a MinHash signature into fixed-size bands and renders
// each as a bucket key. Names sharing any band key are fuzzy candidates.
func LSHBandKeys(signature []uint64) []string {
	if len(signature) == 0 {
		return nil
	}

	keys := make([]string, 0, len(signature)/minHashBandSize)
	for start := 0; start+minHashBandSize <= len(signature); start += minHashBandSize {
		keys = append(keys, fmt.Sprintf("%d:%v", start/minHashBandSize, signature[start:start+minHashBandSize]))
	}
	return keys
}

// JaccardSimilarity returns the Jaccard similarity of two shingle sets.
func JaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	setA := make(map[string]bool, len(a))
	for _, s := range a {
		setA[s] = true
	}
	setB := make(map[string]bool, len(b))
	for _, s := range b {
		setB[s] = true
	}

	intersection := 0
	for s := range setA {
		if setB[s] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}
