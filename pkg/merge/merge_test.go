package merge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oculairmedia/graphiti-sub006/pkg/dedup"
	"github.com/oculairmedia/graphiti-sub006/pkg/driver"
	"github.com/oculairmedia/graphiti-sub006/pkg/types"
)

func seedNode(t *testing.T, store *driver.MemoryStore, uuid, name string, createdAt time.Time, attrs map[string]interface{}) *types.EntityNode {
	t.Helper()
	node := &types.EntityNode{
		Uuid:           uuid,
		GroupID:        "group-1",
		Name:           name,
		NormalizedName: dedup.Normalize(name),
		CreatedAt:      createdAt,
		Attributes:     attrs,
	}
	require.NoError(t, store.UpsertNode(context.Background(), node))
	return node
}

func TestExecutorMergesPairAndRewires(t *testing.T) {
	ctx := context.Background()
	store := driver.NewMemoryStore()
	executor := NewExecutor(store, DefaultOptions(), nil)

	older := seedNode(t, store, "a-older", "Claude", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), nil)
	newer := seedNode(t, store, "b-newer", "claude", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), nil)
	other := seedNode(t, store, "c-other", "Anthropic", time.Now(), nil)

	require.NoError(t, store.UpsertEntityEdge(ctx, &types.EntityEdge{
		Uuid: "e1", GroupID: "group-1", SourceUuid: newer.Uuid, TargetUuid: other.Uuid, RelationName: "MADE_BY",
	}))

	stats := executor.Execute(ctx, []types.DuplicatePair{{Duplicate: newer, Canonical: older}})
	assert.Equal(t, 1, stats.PairsMerged)
	assert.Equal(t, 1, stats.EdgesRewired)
	assert.Empty(t, stats.Failures)

	// All edges now reference the canonical node.
	edges, err := store.EdgesForNode(ctx, older.Uuid, "group-1")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, older.Uuid, edges[0].SourceUuid)

	merged, err := store.GetNode(ctx, newer.Uuid, "group-1")
	require.NoError(t, err)
	assert.True(t, merged.Retired())

	audits, err := store.AuditEdges(ctx, "group-1")
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, newer.Uuid, audits[0].SourceUuid)
	assert.Equal(t, older.Uuid, audits[0].TargetUuid)
}

func TestExecutorEarliestCreatedWinsEvenWhenPairIsReversed(t *testing.T) {
	ctx := context.Background()
	store := driver.NewMemoryStore()
	executor := NewExecutor(store, DefaultOptions(), nil)

	older := seedNode(t, store, "a-older", "Claude", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), nil)
	newer := seedNode(t, store, "b-newer", "claude", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), nil)

	// The pair arrives with the older node marked as the duplicate.
	stats := executor.Execute(ctx, []types.DuplicatePair{{Duplicate: older, Canonical: newer}})
	assert.Equal(t, 1, stats.PairsMerged)

	kept, err := store.GetNode(ctx, older.Uuid, "group-1")
	require.NoError(t, err)
	assert.False(t, kept.Retired())

	gone, err := store.GetNode(ctx, newer.Uuid, "group-1")
	require.NoError(t, err)
	assert.True(t, gone.Retired())
}

func TestExecutorPreferAttributesPolicy(t *testing.T) {
	ctx := context.Background()
	store := driver.NewMemoryStore()

	opts := DefaultOptions()
	opts.Policy = PolicyPreferAttributes
	executor := NewExecutor(store, opts, nil)

	rich := seedNode(t, store, "a-rich", "Claude", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		map[string]interface{}{"type": "assistant", "vendor": "Anthropic"})
	sparse := seedNode(t, store, "b-sparse", "claude", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), nil)

	stats := executor.Execute(ctx, []types.DuplicatePair{{Duplicate: rich, Canonical: sparse}})
	assert.Equal(t, 1, stats.PairsMerged)

	kept, err := store.GetNode(ctx, rich.Uuid, "group-1")
	require.NoError(t, err)
	assert.False(t, kept.Retired())
	assert.Equal(t, "Anthropic", kept.Attributes["vendor"])
}

func TestExecutorAbsorbsAttributesCanonicalWins(t *testing.T) {
	ctx := context.Background()
	store := driver.NewMemoryStore()
	executor := NewExecutor(store, DefaultOptions(), nil)

	canonical := seedNode(t, store, "a-canon", "Claude", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		map[string]interface{}{"type": "assistant"})
	duplicate := seedNode(t, store, "b-dup", "claude", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		map[string]interface{}{"type": "chatbot", "vendor": "Anthropic"})
	duplicate.Summary = "a large language model"
	require.NoError(t, store.UpsertNode(ctx, duplicate))

	executor.Execute(ctx, []types.DuplicatePair{{Duplicate: duplicate, Canonical: canonical}})

	kept, err := store.GetNode(ctx, canonical.Uuid, "group-1")
	require.NoError(t, err)
	// Canonical's value wins on conflict, duplicate fills the gaps.
	assert.Equal(t, "assistant", kept.Attributes["type"])
	assert.Equal(t, "Anthropic", kept.Attributes["vendor"])
	assert.Equal(t, "a large language model", kept.Summary)
}

func TestExecutorIsolatesFailedPairs(t *testing.T) {
	ctx := context.Background()
	store := driver.NewMemoryStore()
	executor := NewExecutor(store, DefaultOptions(), nil)

	canonical := seedNode(t, store, "a-canon", "Claude", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), nil)
	duplicate := seedNode(t, store, "b-dup", "claude", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), nil)
	ghost := &types.EntityNode{Uuid: "ghost", GroupID: "group-1", Name: "Ghost", CreatedAt: time.Now()}

	stats := executor.Execute(ctx, []types.DuplicatePair{
		{Duplicate: ghost, Canonical: canonical},
		{Duplicate: duplicate, Canonical: canonical},
	})

	// The missing node fails its own pair only.
	assert.Equal(t, 1, stats.PairsMerged)
	require.Len(t, stats.Failures, 1)
	assert.Equal(t, "ghost", stats.Failures[0].Uuid)
}

func TestExecutorSkipsAlreadyMergedPairs(t *testing.T) {
	ctx := context.Background()
	store := driver.NewMemoryStore()
	executor := NewExecutor(store, DefaultOptions(), nil)

	canonical := seedNode(t, store, "a-canon", "Claude", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), nil)
	duplicate := seedNode(t, store, "b-dup", "claude", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), nil)

	// The same pair twice: the second run sees a retired duplicate.
	first := executor.Execute(ctx, []types.DuplicatePair{{Duplicate: duplicate, Canonical: canonical}})
	assert.Equal(t, 1, first.PairsMerged)

	second := executor.Execute(ctx, []types.DuplicatePair{{Duplicate: duplicate, Canonical: canonical}})
	assert.Equal(t, 1, second.PairsSkipped)
	assert.Equal(t, 0, second.PairsMerged)

	// Audit trail is append-only: still exactly one edge.
	audits, err := store.AuditEdges(ctx, "group-1")
	require.NoError(t, err)
	assert.Len(t, audits, 1)
}

func TestExecutorSerializesSharedCanonical(t *testing.T) {
	ctx := context.Background()
	store := driver.NewMemoryStore()
	executor := NewExecutor(store, DefaultOptions(), nil)

	canonical := seedNode(t, store, "a-canon", "Claude", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), nil)
	pairs := make([]types.DuplicatePair, 0, 8)
	for i := 0; i < 8; i++ {
		dup := seedNode(t, store, string(rune('b'+i))+"-dup", "claude",
			time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i)*time.Hour),
			map[string]interface{}{"idx": i})
		pairs = append(pairs, types.DuplicatePair{Duplicate: dup, Canonical: canonical})
	}

	stats := executor.Execute(ctx, pairs)
	assert.Equal(t, 8, stats.PairsMerged)
	assert.Empty(t, stats.Failures)

	live, err := store.ListNodes(ctx, "group-1")
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, canonical.Uuid, live[0].Uuid)
}
