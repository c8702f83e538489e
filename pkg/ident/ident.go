// Package ident derives deterministic identities for nodes and edges.
//
// Identities are UUIDv5 values computed from a per-group namespace and a
// composite key, so re-processing the same content always collapses to the
// same identifier before any matching logic runs. Derivation is a pure
// function: identical inputs yield identical UUIDs across process restarts.
package ident

import (
	"strings"

	"github.com/google/uuid"

	"github.com/oculairmedia/graphiti-sub006/pkg/types"
)

// rootNamespace anchors all per-group namespaces. Changing it invalidates
// every derived identity in every deployment, so it is fixed forever.
var rootNamespace = uuid.MustParse("9a715ba2-6f0b-4f97-9b2c-8a54c62e7d11")

// keySeparator joins composite key parts. It cannot appear in group IDs
// (validated as [a-zA-Z0-9_-]) and normalized names never contain newlines,
// so distinct inputs can never produce the same composite key.
const keySeparator = "\n"

// GroupNamespace returns the UUIDv5 namespace for a group.
func GroupNamespace(groupID string) uuid.UUID {
	return uuid.NewSHA1(rootNamespace, []byte(groupID))
}

// NodeUUID derives the identity of an entity node from its group and
// normalized name.
func NodeUUID(groupID, normalizedName string) string {
	return uuid.NewSHA1(GroupNamespace(groupID), []byte("node"+keySeparator+normalizedName)).String()
}

// EdgeUUID derives the identity of an edge from its group, endpoints, and
// its explicit kind discriminator. Every edge category must supply a valid
// kind: edge categories without a relation name (MENTIONS, IS_DUPLICATE_OF)
// carry their kind as the sole discriminator rather than a generic
// placeholder, so two different edge categories between the same endpoints
// always derive different UUIDs.
//
// relationName further discriminates EdgeKindRelatesTo edges and is ignored
// for fixed-relation kinds.
func EdgeUUID(groupID, sourceUuid, targetUuid string, kind types.EdgeKind, relationName string) string {
	parts := []string{"edge", string(kind), sourceUuid, targetUuid}
	if kind == types.EdgeKindRelatesTo {
		parts = append(parts, strings.ToLower(strings.TrimSpace(relationName)))
	}
	key := strings.Join(parts, keySeparator)
	return uuid.NewSHA1(GroupNamespace(groupID), []byte(key)).String()
}

// NewUuid returns a time-ordered UUIDv7 for records that need a fresh,
// non-derived identity (episodes, audit edges).
func NewUuid() string {
	return uuid.Must(uuid.NewV7()).String()
}
