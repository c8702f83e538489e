package resolution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oculairmedia/graphiti-sub006/pkg/driver"
	"github.com/oculairmedia/graphiti-sub006/pkg/types"
)

func TestResolveBatchCollapsesCrossEpisodeDuplicates(t *testing.T) {
	ctx := context.Background()
	store := driver.NewMemoryStore()
	resolver := newTestResolver(t, store, nil)

	// Two episodes in one batch both extract "OpenAI"; the batch collapses
	// them before any store write.
	episodes := []*types.Episode{
		testEpisode("ep1", "OpenAI"),
		testEpisode("ep2", "OpenAI"),
	}

	result, err := resolver.ResolveBatch(ctx, episodes)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Stats.NodesIn)
	assert.Equal(t, 1, result.Stats.NewNodes)

	stored, err := store.ListNodes(ctx, "group-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "OpenAI", stored[0].Name)

	// Both episodes mention the single canonical node.
	require.Len(t, result.NodesByEpisode["ep1"], 1)
	require.Len(t, result.NodesByEpisode["ep2"], 1)
	assert.Equal(t, result.NodesByEpisode["ep1"][0].Uuid, result.NodesByEpisode["ep2"][0].Uuid)
	assert.Len(t, result.EpisodicEdges, 2)
}

func TestResolveBatchKeepsDistinctEntitiesApart(t *testing.T) {
	ctx := context.Background()
	store := driver.NewMemoryStore()
	resolver := newTestResolver(t, store, nil)

	episodes := []*types.Episode{
		testEpisode("ep1", "OpenAI", "Claude"),
		testEpisode("ep2", "Anthropic"),
	}

	result, err := resolver.ResolveBatch(ctx, episodes)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Stats.NewNodes)

	stored, err := store.ListNodes(ctx, "group-1")
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestResolveBatchMatchesExistingStoreNodes(t *testing.T) {
	ctx := context.Background()
	store := driver.NewMemoryStore()
	resolver := newTestResolver(t, store, nil)

	_, err := resolver.ResolveEpisode(ctx, testEpisode("ep0", "OpenAI"))
	require.NoError(t, err)

	result, err := resolver.ResolveBatch(ctx, []*types.Episode{
		testEpisode("ep1", "openai"),
		testEpisode("ep2", "OPENAI"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Stats.ExactMatches)
	assert.Equal(t, 0, result.Stats.NewNodes)

	stored, err := store.ListNodes(ctx, "group-1")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestResolveBatchEdgesUseCollapsedEndpoints(t *testing.T) {
	ctx := context.Background()
	store := driver.NewMemoryStore()
	resolver := newTestResolver(t, store, nil)

	ep1 := testEpisode("ep1", "OpenAI")
	ep2 := testEpisode("ep2", "OpenAI", "Sam Altman")
	ep2.ExtractedEdges = []*types.EntityEdge{{
		GroupID:      "group-1",
		SourceUuid:   ep2.ExtractedNodes[1].Uuid,
		TargetUuid:   ep2.ExtractedNodes[0].Uuid,
		RelationName: "LEADS",
	}}

	result, err := resolver.ResolveBatch(ctx, []*types.Episode{ep1, ep2})
	require.NoError(t, err)

	require.Len(t, result.Edges, 1)
	edge := result.Edges[0]
	canonical := result.NodesByEpisode["ep1"][0]
	assert.Equal(t, canonical.Uuid, edge.TargetUuid)
	assert.Empty(t, result.Stats.Failures)
}

func TestResolveBatchRejectsMixedGroups(t *testing.T) {
	resolver := newTestResolver(t, driver.NewMemoryStore(), nil)

	other := testEpisode("ep2", "Claude")
	other.Node.GroupID = "group-2"

	_, err := resolver.ResolveBatch(context.Background(), []*types.Episode{
		testEpisode("ep1", "Claude"),
		other,
	})
	assert.ErrorIs(t, err, &types.ConfigurationError{})
}

func TestResolveBatchEmpty(t *testing.T) {
	resolver := newTestResolver(t, driver.NewMemoryStore(), nil)
	result, err := resolver.ResolveBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.NodesByEpisode)
	assert.Equal(t, 0, result.Stats.NodesIn)
}
