package utils

import (
	"github.com/oculairmedia/graphiti-sub006/pkg/types"
)

// UnionFind tracks duplicate sets of UUIDs with path compression. Roots are
// kept lexicographically smallest so collapsing is deterministic.
type UnionFind struct {
	parent map[string]string
}

// NewUnionFind returns a UnionFind seeded with the given elements.
func NewUnionFind(elements []string) *UnionFind {
	parent := make(map[string]string, len(elements))
	for _, element := range elements {
		parent[element] = element
	}
	return &UnionFind{parent: parent}
}

// Find returns the root of the set containing x.
func (uf *UnionFind) Find(x string) string {
	if _, ok := uf.parent[x]; !ok {
		uf.parent[x] = x
	}
	if uf.parent[x] != x {
		uf.parent[x] = uf.Find(uf.parent[x])
	}
	return uf.parent[x]
}

// Union merges the sets containing a and b, keeping the smaller root.
func (uf *UnionFind) Union(a, b string) {
	rootA, rootB := uf.Find(a), uf.Find(b)
	if rootA == rootB {
		return
	}
	if rootA < rootB {
		uf.parent[rootB] = rootA
	} else {
		uf.parent[rootA] = rootB
	}
}

// CompressUuidMap collapses undirected duplicate pairs into a map from each
// UUID to the lexicographically smallest UUID of its duplicate set. Used by
// the bulk engine for in-batch collapsing, where no member is canonical yet.
func CompressUuidMap(pairs [][2]string) types.UuidMap {
	result := make(types.UuidMap)
	if len(pairs) == 0 {
		return result
	}

	uf := NewUnionFind(nil)
	for _, pair := range pairs {
		uf.Union(pair[0], pair[1])
	}
	for uuid := range uf.parent {
		result[uuid] = uf.Find(uuid)
	}
	return result
}

// BuildDirectedUuidMap collapses duplicate -> canonical chains while
// preserving direction: when resolution decided B is the canonical of A and
// C is the canonical of B, A maps to C. Used for store-backed resolutions,
// where the canonical side of each pair is authoritative.
func BuildDirectedUuidMap(pairs [][2]string) types.UuidMap {
	result := make(types.UuidMap)
	if len(pairs) == 0 {
		return result
	}

	parent := make(map[string]string)
	var find func(uuid string) string
	find = func(uuid string) string {
		if _, ok := parent[uuid]; !ok {
			parent[uuid] = uuid
		}
		root := uuid
		for parent[root] != root {
			root = parent[root]
		}
		for parent[uuid] != root {
			next := parent[uuid]
			parent[uuid] = root
			uuid = next
		}
		return root
	}

	for _, pair := range pairs {
		duplicate, canonical := pair[0], pair[1]
		if find(duplicate) != find(canonical) {
			parent[find(duplicate)] = find(canonical)
		}
	}

	for uuid := range parent {
		result[uuid] = find(uuid)
	}
	return result
}
