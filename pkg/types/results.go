package types

import (
	"time"
)

// UuidMap maps duplicate UUIDs onto their canonical UUIDs. It is produced by
// a resolution pass and consumed by the merge executor within the same call;
// it is never persisted beyond the audit edges it produces.
type UuidMap map[string]string

// Canonical returns the canonical UUID for uuid, following the map when an
// entry exists and returning uuid itself otherwise.
func (m UuidMap) Canonical(uuid string) string {
	if canonical, ok := m[uuid]; ok && canonical != "" {
		return canonical
	}
	return uuid
}

// DuplicatePair names a duplicate node and the canonical node it should be
// merged into.
type DuplicatePair struct {
	Duplicate *EntityNode
	Canonical *EntityNode
}

// ItemFailure records a per-item failure inside an otherwise successful
// batch. Failures never abort sibling items.
type ItemFailure struct {
	Uuid   string `json:"uuid"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// ResolutionStats summarizes one resolution pass.
type ResolutionStats struct {
	NodesIn        int           `json:"nodes_in"`
	ExactMatches   int           `json:"exact_matches"`
	SimilarityHits int           `json:"similarity_hits"`
	JudgeCalls     int           `json:"judge_calls"`
	JudgeFallbacks int           `json:"judge_fallbacks"`
	NewNodes       int           `json:"new_nodes"`
	Failures       []ItemFailure `json:"failures,omitempty"`
	Elapsed        time.Duration `json:"elapsed"`
}

// ResolveResult is the outcome of resolving one episode's extracted nodes
// and edges against the live graph.
type ResolveResult struct {
	Nodes          []*EntityNode
	Edges          []*EntityEdge
	EpisodicEdges  []*EpisodicEdge
	UuidMap        UuidMap
	DuplicatePairs []DuplicatePair
	Stats          ResolutionStats
}

// BatchResolveResult is the outcome of resolving a batch of episodes.
type BatchResolveResult struct {
	NodesByEpisode map[string][]*EntityNode
	Edges          []*EntityEdge
	EpisodicEdges  []*EpisodicEdge
	UuidMap        UuidMap
	DuplicatePairs []DuplicatePair
	Stats          ResolutionStats
}

// MergeStats summarizes a merge executor run. Failed pairs are isolated and
// reported here, never silently dropped.
type MergeStats struct {
	PairsProcessed int           `json:"pairs_processed"`
	PairsMerged    int           `json:"pairs_merged"`
	PairsSkipped   int           `json:"pairs_skipped"`
	EdgesRewired   int           `json:"edges_rewired"`
	Failures       []ItemFailure `json:"failures,omitempty"`
	Elapsed        time.Duration `json:"elapsed"`
}
