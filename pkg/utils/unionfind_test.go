package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompressUuidMap(t *testing.T) {
	m := CompressUuidMap([][2]string{
		{"b", "a"},
		{"c", "b"},
		{"e", "d"},
	})

	// Every member of a duplicate set maps to its smallest uuid.
	assert.Equal(t, "a", m["a"])
	assert.Equal(t, "a", m["b"])
	assert.Equal(t, "a", m["c"])
	assert.Equal(t, "d", m["d"])
	assert.Equal(t, "d", m["e"])

	assert.Empty(t, CompressUuidMap(nil))
}

func TestBuildDirectedUuidMapCollapsesChains(t *testing.T) {
	// b was declared the canonical of a, then c the canonical of b.
	m := BuildDirectedUuidMap([][2]string{
		{"a", "b"},
		{"b", "c"},
	})

	assert.Equal(t, "c", m["a"])
	assert.Equal(t, "c", m["b"])
	assert.Equal(t, "c", m["c"])
}

func TestBuildDirectedUuidMapPreservesDirection(t *testing.T) {
	// Direction must survive even when it disagrees with lexical order.
	m := BuildDirectedUuidMap([][2]string{{"z", "a"}, {"b", "z"}})
	assert.Equal(t, "a", m["z"])
	assert.Equal(t, "a", m["b"])
}

func TestBuildDirectedUuidMapIgnoresCycles(t *testing.T) {
	m := BuildDirectedUuidMap([][2]string{
		{"a", "b"},
		{"b", "a"},
	})
	// The second pair closes a cycle and is dropped; both resolve to one root.
	assert.Equal(t, m["a"], m["b"])
}
