package types

import (
	"time"
)

// EdgeKind is the explicit discriminator every edge category supplies to the
// identity deriver. Edge kinds are never inferred from an optional name
// field: an edge with no relation name still carries a stable kind, so two
// different edge categories between the same endpoints can never collide on
// a derived identity.
type EdgeKind string

const (
	// EdgeKindRelatesTo covers typed entity-to-entity relationships. The
	// relation name is appended to the discriminator on derivation.
	EdgeKindRelatesTo EdgeKind = "relates_to"
	// EdgeKindMentions connects an episode to an entity it mentions.
	EdgeKindMentions EdgeKind = "mentions"
	// EdgeKindDuplicateOf is the append-only audit trail of merge decisions.
	EdgeKindDuplicateOf EdgeKind = "is_duplicate_of"
)

// Valid reports whether k is one of the declared edge kinds.
func (k EdgeKind) Valid() bool {
	switch k {
	case EdgeKindRelatesTo, EdgeKindMentions, EdgeKindDuplicateOf:
		return true
	}
	return false
}

// EntityEdge represents a typed relationship between two entity nodes.
type EntityEdge struct {
	Uuid         string    `json:"uuid"`
	GroupID      string    `json:"group_id"`
	SourceUuid   string    `json:"source_node_uuid"`
	TargetUuid   string    `json:"target_node_uuid"`
	RelationName string    `json:"relation_name"`
	Fact         string    `json:"fact,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks the fields every entity edge must carry.
func (e *EntityEdge) Validate() error {
	if e.GroupID == "" {
		return ErrEmptyGroupID
	}
	if e.SourceUuid == "" || e.TargetUuid == "" {
		return ErrMissingEndpoint
	}
	if e.RelationName == "" {
		return ErrEmptyRelationName
	}
	return nil
}

// EpisodicEdge connects an episode to an entity it mentions. The relation
// type is fixed (MENTIONS), so the edge carries no name field; its identity
// discriminator is EdgeKindMentions.
type EpisodicEdge struct {
	Uuid        string    `json:"uuid"`
	GroupID     string    `json:"group_id"`
	EpisodeUuid string    `json:"source_node_uuid"`
	EntityUuid  string    `json:"target_node_uuid"`
	CreatedAt   time.Time `json:"created_at"`
}

// DuplicateAuditEdge records a merge decision: source is the retired
// duplicate, target the canonical node. Audit edges are append-only and are
// excluded from analytics by contract.
type DuplicateAuditEdge struct {
	Uuid       string    `json:"uuid"`
	GroupID    string    `json:"group_id"`
	SourceUuid string    `json:"source_node_uuid"`
	TargetUuid string    `json:"target_node_uuid"`
	CreatedAt  time.Time `json:"created_at"`
}

// DuplicateAuditRelation is the relation name audit edges are stored under.
// Analytics consumers filter this name out of centrality computations.
const DuplicateAuditRelation = "IS_DUPLICATE_OF"
