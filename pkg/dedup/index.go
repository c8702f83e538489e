package dedup

import (
	"sort"

	"github.com/oculairmedia/graphiti-sub006/pkg/types"
)

// DefaultCandidateLimit bounds the candidate set any single lookup returns.
const DefaultCandidateLimit = 50

// CandidateIndex holds precomputed exact and fuzzy lookup structures over a
// set of existing nodes. Built once per resolution pass; read-only after.
type CandidateIndex struct {
	nodesByUuid   map[string]*types.EntityNode
	byNormalized  map[string][]*types.EntityNode
	shinglesByUid map[string][]string
	lshBuckets    map[string][]string
}

// BuildCandidateIndex precomputes lookup structures for one dedupe pass.
func BuildCandidateIndex(existing []*types.EntityNode) *CandidateIndex {
	idx := &CandidateIndex{
		nodesByUuid:   make(map[string]*types.EntityNode, len(existing)),
		byNormalized:  make(map[string][]*types.EntityNode),
		shinglesByUid: make(map[string][]string, len(existing)),
		lshBuckets:    make(map[string][]string),
	}

	for _, node := range existing {
		normalized := node.NormalizedName
		if normalized == "" {
			normalized = Normalize(node.Name)
		}
		idx.nodesByUuid[node.Uuid] = node
		idx.byNormalized[normalized] = append(idx.byNormalized[normalized], node)

		sh := Shingles(normalized)
		idx.shinglesByUid[node.Uuid] = sh
		for _, key := range LSHBandKeys(MinHashSignature(sh)) {
			idx.lshBuckets[key] = append(idx.lshBuckets[key], node.Uuid)
		}
	}
	return idx
}

// Node returns the indexed node with the given uuid, or nil.
func (idx *CandidateIndex) Node(uuid string) *types.EntityNode {
	return idx.nodesByUuid[uuid]
}

// ExactMatches returns the indexed nodes whose normalized name equals the
// given key.
func (idx *CandidateIndex) ExactMatches(normalizedName string) []*types.EntityNode {
	return idx.byNormalized[normalizedName]
}

type scoredCandidate struct {
	node  *types.EntityNode
	score float64
}

// FuzzyCandidates returns up to limit indexed nodes whose shingle sets land
// in the same LSH buckets as the given name, ranked by Jaccard similarity.
// Low-entropy names return nothing; their matching is delegated upstream.
func (idx *CandidateIndex) FuzzyCandidates(normalizedName string, limit int) []*types.EntityNode {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	if !HasHighEntropy(normalizedName) {
		return nil
	}

	sh := Shingles(normalizedName)
	seen := make(map[string]bool)
	for _, key := range LSHBandKeys(MinHashSignature(sh)) {
		for _, uuid := range idx.lshBuckets[key] {
			seen[uuid] = true
		}
	}

	scored := make([]scoredCandidate, 0, len(seen))
	for uuid := range seen {
		score := JaccardSimilarity(sh, idx.shinglesByUid[uuid])
		if score > 0 {
			scored = append(scored, scoredCandidate{node: idx.nodesByUuid[uuid], score: score})
		}
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].node.Uuid < scored[j].node.Uuid
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	result := make([]*types.EntityNode, len(scored))
	for i, sc := range scored {
		result[i] = sc.node
	}
	return result
}
