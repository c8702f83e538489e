// Package driver defines the graph store interface the resolution engine
// runs against, plus the Neo4j implementation and an in-memory store used
// in tests. The store is the single source of truth for node and edge
// existence; the engine issues only idempotent, identity-keyed writes.
package driver

import (
	"context"

	"github.com/oculairmedia/graphiti-sub006/pkg/types"
)

// RetireMode selects what happens to a duplicate node after its merge.
type RetireMode string

const (
	// RetireModeSoft tags the duplicate with retired_at. It stays queryable
	// for audit but is excluded from candidate search and edge endpoints.
	RetireModeSoft RetireMode = "soft"
	// RetireModeHard detaches and deletes the duplicate node.
	RetireModeHard RetireMode = "hard"
)

// MergeRequest describes one transactional merge of a duplicate node into
// its canonical node. The store rewires every edge endpoint from the
// duplicate to the canonical, applies the pre-merged attributes and summary
// to the canonical, writes the audit edge, and retires the duplicate, all
// in one transaction.
type MergeRequest struct {
	GroupID       string
	DuplicateUuid string
	CanonicalUuid string
	MergedSummary string
	MergedAttrs   map[string]interface{}
	AuditEdgeUuid string
	Retire        RetireMode
}

// NodeStore covers point lookups, bounded candidate search, and upserts of
// entity nodes.
type NodeStore interface {
	GetNode(ctx context.Context, uuid, groupID string) (*types.EntityNode, error)
	GetNodes(ctx context.Context, uuids []string, groupID string) ([]*types.EntityNode, error)
	UpsertNode(ctx context.Context, node *types.EntityNode) error
	// ListNodes returns the live entity nodes of a group ordered by
	// normalized name. Used by the maintenance reconciler.
	ListNodes(ctx context.Context, groupID string) ([]*types.EntityNode, error)
	// SearchCandidates returns up to limit live nodes of the group whose
	// normalized name or embedding is within coarse distance of the probe.
	// Never a full scan.
	SearchCandidates(ctx context.Context, groupID, normalizedName string, embedding []float32, limit int) ([]*types.EntityNode, error)
}

// EdgeStore covers entity and episodic edge persistence.
type EdgeStore interface {
	UpsertEntityEdge(ctx context.Context, edge *types.EntityEdge) error
	UpsertEpisodicEdge(ctx context.Context, edge *types.EpisodicEdge) error
	// EdgesForNode returns every entity edge with the given node as either
	// endpoint.
	EdgesForNode(ctx context.Context, uuid, groupID string) ([]*types.EntityEdge, error)
}

// EpisodeStore persists raw episodes.
type EpisodeStore interface {
	UpsertEpisode(ctx context.Context, episode *types.EpisodicNode) error
}

// Merger executes the transactional merge primitive. A failed merge rolls
// back only its own transaction.
type Merger interface {
	// MergeNodes applies req atomically and returns the number of edges
	// rewired onto the canonical node.
	MergeNodes(ctx context.Context, req MergeRequest) (int, error)
}

// GraphStore is the full contract the engine needs from a backend.
type GraphStore interface {
	NodeStore
	EdgeStore
	EpisodeStore
	Merger
	Close(ctx context.Context) error
}
