package resolution

import (
	"context"
	"fmt"
	"time"

	"github.com/oculairmedia/graphiti-sub006/pkg/dedup"
	"github.com/oculairmedia/graphiti-sub006/pkg/ident"
	"github.com/oculairmedia/graphiti-sub006/pkg/types"
	"github.com/oculairmedia/graphiti-sub006/pkg/utils"
)

// ResolveBatch resolves many episodes' extracted nodes concurrently.
// Same-batch duplicates that never touched the store are collapsed into one
// representative per duplicate set before any store lookup or write, then
// the representatives run through the single-episode decision ladder. No
// ordering is guaranteed between episodes, but collapsing always precedes
// store writes.
func (r *Resolver) ResolveBatch(ctx context.Context, episodes []*types.Episode) (*types.BatchResolveResult, error) {
	start := time.Now()

	result := &types.BatchResolveResult{
		NodesByEpisode: make(map[string][]*types.EntityNode),
		UuidMap:        make(types.UuidMap),
	}
	if len(episodes) == 0 {
		return result, nil
	}

	groupID := ""
	var allNodes []*types.EntityNode
	for _, episode := range episodes {
		if episode == nil || episode.Node == nil {
			return nil, &types.ConfigurationError{Field: "episodes", Message: "every episode needs its episodic node"}
		}
		if err := episode.Node.Validate(); err != nil {
			return nil, err
		}
		if groupID == "" {
			groupID = episode.Node.GroupID
		} else if episode.Node.GroupID != groupID {
			return nil, &types.ConfigurationError{Field: "episodes", Message: "a batch must stay within one group"}
		}
		allNodes = append(allNodes, episode.ExtractedNodes...)
	}

	for _, episode := range episodes {
		if err := r.store.UpsertEpisode(ctx, episode.Node); err != nil {
			return nil, fmt.Errorf("persisting episode %s: %w", episode.Node.Uuid, err)
		}
	}

	prepareNodes(groupID, allNodes)

	// Embeddings for the whole batch up front, bounded by the semaphore.
	r.embedNodes(ctx, allNodes)

	batchMap, representatives := r.collapseBatch(allNodes)
	result.Stats.NodesIn = len(allNodes)

	// Representatives run against the store with the strict thresholds.
	outcomes := r.resolveNodes(ctx, groupID, representatives)
	repResult := r.collectOutcomes(groupID, representatives, outcomes)

	// Compose batch collapsing with store resolution, flattening chains.
	var pairs [][2]string
	for duplicate, representative := range batchMap {
		pairs = append(pairs, [2]string{duplicate, representative})
	}
	for duplicate, canonical := range repResult.UuidMap {
		pairs = append(pairs, [2]string{duplicate, canonical})
	}
	result.UuidMap = utils.BuildDirectedUuidMap(pairs)
	result.DuplicatePairs = repResult.DuplicatePairs
	result.Stats.ExactMatches = repResult.Stats.ExactMatches
	result.Stats.SimilarityHits = repResult.Stats.SimilarityHits
	result.Stats.JudgeCalls = repResult.Stats.JudgeCalls
	result.Stats.JudgeFallbacks = repResult.Stats.JudgeFallbacks
	result.Stats.NewNodes = repResult.Stats.NewNodes
	result.Stats.Failures = repResult.Stats.Failures

	resolvedByUuid := make(map[string]*types.EntityNode, len(repResult.Nodes))
	for _, node := range repResult.Nodes {
		resolvedByUuid[node.Uuid] = node
	}

	// Per-episode resolved node lists and MENTIONS edges.
	for _, episode := range episodes {
		seen := make(map[string]bool)
		for _, extracted := range episode.ExtractedNodes {
			canonicalUuid := result.UuidMap.Canonical(extracted.Uuid)
			resolved, ok := resolvedByUuid[canonicalUuid]
			if !ok || seen[resolved.Uuid] {
				continue
			}
			seen[resolved.Uuid] = true
			result.NodesByEpisode[episode.Node.Uuid] = append(result.NodesByEpisode[episode.Node.Uuid], resolved)

			mention := &types.EpisodicEdge{
				Uuid:        ident.EdgeUUID(groupID, episode.Node.Uuid, resolved.Uuid, types.EdgeKindMentions, ""),
				GroupID:     groupID,
				EpisodeUuid: episode.Node.Uuid,
				EntityUuid:  resolved.Uuid,
			}
			if err := r.store.UpsertEpisodicEdge(ctx, mention); err != nil {
				result.Stats.Failures = append(result.Stats.Failures, types.ItemFailure{
					Uuid: mention.Uuid, Reason: err.Error(),
				})
				continue
			}
			result.EpisodicEdges = append(result.EpisodicEdges, mention)
		}
	}

	// Entity edges last, endpoints resolved through the final map.
	for _, episode := range episodes {
		for _, edge := range episode.ExtractedEdges {
			resolved := &types.EntityEdge{
				GroupID:      groupID,
				SourceUuid:   result.UuidMap.Canonical(edge.SourceUuid),
				TargetUuid:   result.UuidMap.Canonical(edge.TargetUuid),
				RelationName: edge.RelationName,
				Fact:         edge.Fact,
				CreatedAt:    edge.CreatedAt,
			}
			resolved.Uuid = ident.EdgeUUID(groupID, resolved.SourceUuid, resolved.TargetUuid, types.EdgeKindRelatesTo, resolved.RelationName)
			if err := r.store.UpsertEntityEdge(ctx, resolved); err != nil {
				result.Stats.Failures = append(result.Stats.Failures, types.ItemFailure{
					Uuid: resolved.Uuid, Name: resolved.RelationName, Reason: err.Error(),
				})
				continue
			}
			result.Edges = append(result.Edges, resolved)
		}
	}

	result.Stats.Elapsed = time.Since(start)
	r.logger.Info("batch resolved",
		"group_id", groupID,
		"episodes", len(episodes),
		"nodes_in", result.Stats.NodesIn,
		"collapsed_in_batch", len(allNodes)-len(representatives),
		"new", result.Stats.NewNodes,
		"failures", len(result.Stats.Failures),
		"elapsed", result.Stats.Elapsed)
	return result, nil
}

// collapseBatch finds cross-episode duplicates inside the batch at the
// looser bulk threshold, before any store traffic. Returns the map from
// collapsed uuid to its representative's uuid, plus one representative per
// duplicate set.
func (r *Resolver) collapseBatch(nodes []*types.EntityNode) (types.UuidMap, []*types.EntityNode) {
	if len(nodes) < 2 {
		return types.UuidMap{}, nodes
	}

	bulkMatch := dedup.MatchConfig{
		NameThreshold:      r.opts.BulkNameThreshold,
		EmbeddingThreshold: r.opts.Match.EmbeddingThreshold,
	}

	index := dedup.BuildCandidateIndex(nodes)
	var pairs [][2]string
	for _, node := range nodes {
		candidates := index.ExactMatches(node.NormalizedName)
		candidates = append(candidates, index.FuzzyCandidates(node.NormalizedName, r.opts.CandidateLimit)...)
		for _, candidate := range candidates {
			if candidate.Uuid == node.Uuid {
				continue
			}
			if dedup.IsCandidateDuplicate(node, candidate, bulkMatch) {
				pairs = append(pairs, [2]string{node.Uuid, candidate.Uuid})
			}
		}
	}

	collapsed := utils.CompressUuidMap(pairs)

	seen := make(map[string]bool, len(nodes))
	var representatives []*types.EntityNode
	byUuid := make(map[string]*types.EntityNode, len(nodes))
	for _, node := range nodes {
		byUuid[node.Uuid] = node
	}
	batchMap := make(types.UuidMap)
	for _, node := range nodes {
		repUuid := collapsed.Canonical(node.Uuid)
		if repUuid != node.Uuid {
			batchMap[node.Uuid] = repUuid
		}
		if !seen[repUuid] {
			seen[repUuid] = true
			representatives = append(representatives, byUuid[repUuid])
		}
	}
	return batchMap, representatives
}
