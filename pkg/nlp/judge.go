// Package nlp provides the LLM-assisted judgment backend used when
// deterministic matching cannot decide whether two entities are the same
// referent. Every caller treats a failed or malformed judgment as
// "distinct", the conservative verdict, so this package never blocks
// ingestion.
package nlp

import (
	"context"

	"github.com/oculairmedia/graphiti-sub006/pkg/types"
)

// DistinctVerdict is the CanonicalIdx value meaning "no contender matches".
const DistinctVerdict = -1

// Verdict is the outcome of a node judgment. CanonicalIdx indexes into the
// contender list passed to JudgeNode, or is DistinctVerdict.
type Verdict struct {
	CanonicalIdx int    `json:"canonical_idx" yaml:"canonical_idx"`
	Reasoning    string `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
}

// Distinct reports whether the verdict declared the candidate a new entity.
func (v Verdict) Distinct() bool {
	return v.CanonicalIdx < 0
}

// Judge decides entity equivalence when similarity scores are ambiguous.
type Judge interface {
	// JudgeNode presents a candidate and its contenders and returns which
	// contender (if any) names the same referent.
	JudgeNode(ctx context.Context, candidate *types.EntityNode, contenders []*types.EntityNode) (Verdict, error)

	// JudgeCluster partitions a cluster of nodes into groups that each name
	// one referent. Returned groups index into the input slice; every index
	// appears in exactly one group.
	JudgeCluster(ctx context.Context, cluster []*types.EntityNode) ([][]int, error)

	Close() error
}

// NopJudge declares everything distinct. Used when no backend is
// configured and in tests.
type NopJudge struct{}

// JudgeNode always returns a distinct verdict.
func (NopJudge) JudgeNode(ctx context.Context, candidate *types.EntityNode, contenders []*types.EntityNode) (Verdict, error) {
	return Verdict{CanonicalIdx: DistinctVerdict}, nil
}

// JudgeCluster returns each node as its own group.
func (NopJudge) JudgeCluster(ctx context.Context, cluster []*types.EntityNode) ([][]int, error) {
	groups := make([][]int, len(cluster))
	for i := range cluster {
		groups[i] = []int{i}
	}
	return groups, nil
}

// Close is a no-op.
func (NopJudge) Close() error { return nil }
