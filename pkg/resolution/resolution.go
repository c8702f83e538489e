// Package resolution maps newly extracted entities onto the canonical
// nodes already in the graph. It hosts the single-episode pipeline and the
// bulk engine; both share the same decision ladder: exact identity, then
// deterministic similarity, then LLM-assisted judgment, and finally "this
// is a new entity" as the conservative default.
package resolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oculairmedia/graphiti-sub006/pkg/dedup"
	"github.com/oculairmedia/graphiti-sub006/pkg/driver"
	"github.com/oculairmedia/graphiti-sub006/pkg/embedder"
	"github.com/oculairmedia/graphiti-sub006/pkg/ident"
	"github.com/oculairmedia/graphiti-sub006/pkg/nlp"
	"github.com/oculairmedia/graphiti-sub006/pkg/types"
	"github.com/oculairmedia/graphiti-sub006/pkg/utils"
)

// Options tunes one resolver instance.
type Options struct {
	// Match holds the strict thresholds used against store candidates.
	Match dedup.MatchConfig
	// BulkNameThreshold is the looser name threshold used for in-batch
	// collapsing before any store lookup.
	BulkNameThreshold float64
	// CandidateLimit bounds every store candidate search.
	CandidateLimit int
	// MaxConcurrency bounds concurrent embedding, judgment, and store
	// calls.
	MaxConcurrency int
	// JudgeTimeout bounds one judgment call. On timeout the candidate is
	// declared distinct.
	JudgeTimeout time.Duration
	// EmbedTimeout bounds one embedding call. On timeout matching degrades
	// to name-only.
	EmbedTimeout time.Duration
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		Match:             dedup.DefaultMatchConfig(),
		BulkNameThreshold: dedup.BulkNameThreshold,
		CandidateLimit:    dedup.DefaultCandidateLimit,
		MaxConcurrency:    utils.DefaultSemaphoreLimit,
		JudgeTimeout:      30 * time.Second,
		EmbedTimeout:      15 * time.Second,
	}
}

// Validate rejects option sets the engine cannot run with.
func (o Options) Validate() error {
	if o.Match.NameThreshold <= 0 || o.Match.NameThreshold > 1 {
		return &types.ConfigurationError{Field: "match.name_threshold", Message: "must be in (0, 1]"}
	}
	if o.Match.EmbeddingThreshold <= 0 || o.Match.EmbeddingThreshold > 1 {
		return &types.ConfigurationError{Field: "match.embedding_threshold", Message: "must be in (0, 1]"}
	}
	if o.BulkNameThreshold <= 0 || o.BulkNameThreshold > 1 {
		return &types.ConfigurationError{Field: "bulk_name_threshold", Message: "must be in (0, 1]"}
	}
	if o.CandidateLimit <= 0 {
		return &types.ConfigurationError{Field: "candidate_limit", Message: "must be positive"}
	}
	return nil
}

// Resolver decides, for every extracted node, whether it denotes something
// already in the graph.
type Resolver struct {
	store    driver.GraphStore
	judge    nlp.Judge
	embedder embedder.Client
	opts     Options
	logger   *slog.Logger
}

// NewResolver builds a resolver. A nil judge defaults to NopJudge, a nil
// embedder to NopEmbedder, a nil logger to slog.Default.
func NewResolver(store driver.GraphStore, judge nlp.Judge, embed embedder.Client, opts Options, logger *slog.Logger) (*Resolver, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if judge == nil {
		judge = nlp.NopJudge{}
	}
	if embed == nil {
		embed = embedder.NopEmbedder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = utils.GetSemaphoreLimit()
	}
	return &Resolver{store: store, judge: judge, embedder: embed, opts: opts, logger: logger}, nil
}

// SetLogger replaces the resolver's logger.
func (r *Resolver) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// nodeOutcome is the result of resolving one extracted node.
type nodeOutcome struct {
	resolved   *types.EntityNode
	pair       *types.DuplicatePair
	kind       outcomeKind
	fallback   bool
	createdNew bool
	failure    *types.ItemFailure
}

type outcomeKind int

const (
	outcomeExact outcomeKind = iota
	outcomeSimilarity
	outcomeJudge
	outcomeNew
	outcomeFailed
)

// ResolveEpisode resolves one episode's extracted nodes and edges against
// the live graph. Per-item failures never abort the episode; they are
// reported in the returned stats. Node resolution completes before any
// edge is persisted.
func (r *Resolver) ResolveEpisode(ctx context.Context, episode *types.Episode) (*types.ResolveResult, error) {
	if episode == nil || episode.Node == nil {
		return nil, &types.ConfigurationError{Field: "episode", Message: "episode and its node are required"}
	}
	if err := episode.Node.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	if err := r.store.UpsertEpisode(ctx, episode.Node); err != nil {
		return nil, fmt.Errorf("persisting episode %s: %w", episode.Node.Uuid, err)
	}

	prepareNodes(episode.Node.GroupID, episode.ExtractedNodes)
	r.embedNodes(ctx, episode.ExtractedNodes)

	// Re-mentions of the same derived identity inside one episode collapse
	// to their first mention, so concurrent resolution cannot race on the
	// same node.
	representatives, intraMap := collapseByIdentity(episode.Node.GroupID, episode.ExtractedNodes)

	outcomes := r.resolveNodes(ctx, episode.Node.GroupID, representatives)

	result := r.collectOutcomes(episode.Node.GroupID, representatives, outcomes)
	result.Stats.NodesIn = len(episode.ExtractedNodes)
	foldIntraEpisodeMap(result.UuidMap, intraMap)

	r.persistEdges(ctx, episode, result)

	result.Stats.Elapsed = time.Since(start)
	r.logger.Info("episode resolved",
		"episode", episode.Node.Uuid,
		"group_id", episode.Node.GroupID,
		"nodes_in", result.Stats.NodesIn,
		"exact", result.Stats.ExactMatches,
		"similarity", result.Stats.SimilarityHits,
		"judge_calls", result.Stats.JudgeCalls,
		"new", result.Stats.NewNodes,
		"failures", len(result.Stats.Failures),
		"elapsed", result.Stats.Elapsed)
	return result, nil
}

// prepareNodes fills the fields extraction may leave empty: a provisional
// uuid, the group scope, and the normalized name.
func prepareNodes(groupID string, nodes []*types.EntityNode) {
	for _, node := range nodes {
		if node.Uuid == "" {
			node.Uuid = ident.NewUuid()
		}
		if node.GroupID == "" {
			node.GroupID = groupID
		}
		if node.NormalizedName == "" {
			node.NormalizedName = dedup.Normalize(node.Name)
		}
	}
}

// collapseByIdentity keeps the first extracted node per derived identity
// and maps the rest onto it.
func collapseByIdentity(groupID string, nodes []*types.EntityNode) ([]*types.EntityNode, types.UuidMap) {
	byIdentity := make(map[string]*types.EntityNode, len(nodes))
	intraMap := make(types.UuidMap)
	var representatives []*types.EntityNode

	for _, node := range nodes {
		identity := ident.NodeUUID(groupID, node.NormalizedName)
		if first, ok := byIdentity[identity]; ok {
			if node.Uuid != first.Uuid {
				intraMap[node.Uuid] = first.Uuid
			}
			continue
		}
		byIdentity[identity] = node
		representatives = append(representatives, node)
	}
	return representatives, intraMap
}

// foldIntraEpisodeMap redirects collapsed mentions at the uuid their
// representative finally resolved to.
func foldIntraEpisodeMap(uuidMap types.UuidMap, intraMap types.UuidMap) {
	for duplicate, representative := range intraMap {
		uuidMap[duplicate] = uuidMap.Canonical(representative)
	}
}

// embedNodes fills missing name embeddings concurrently. Failures leave the
// embedding empty; matching degrades to name-only for those nodes.
func (r *Resolver) embedNodes(ctx context.Context, nodes []*types.EntityNode) {
	var missing []*types.EntityNode
	for _, node := range nodes {
		if len(node.NameEmbedding) == 0 {
			missing = append(missing, node)
		}
	}
	if len(missing) == 0 {
		return
	}

	functions := make([]func() error, len(missing))
	for i, node := range missing {
		node := node
		functions[i] = func() error {
			embedCtx, cancel := context.WithTimeout(ctx, r.opts.EmbedTimeout)
			defer cancel()

			vector, err := r.embedder.EmbedSingle(embedCtx, node.Name)
			if err != nil {
				return err
			}
			node.NameEmbedding = vector
			return nil
		}
	}

	errs := utils.SemaphoreGather(ctx, r.opts.MaxConcurrency, functions...)
	for i, err := range errs {
		if err != nil {
			r.logger.Warn("embedding failed, degrading to name-only matching",
				"name", missing[i].Name, "error", err)
		}
	}
}

// resolveNodes resolves each extracted node concurrently against the store.
func (r *Resolver) resolveNodes(ctx context.Context, groupID string, nodes []*types.EntityNode) []nodeOutcome {
	functions := make([]func() (nodeOutcome, error), len(nodes))
	for i, node := range nodes {
		node := node
		functions[i] = func() (nodeOutcome, error) {
			return r.resolveOne(ctx, groupID, node), nil
		}
	}

	outcomes, errs := utils.SemaphoreGatherWithResults(ctx, r.opts.MaxConcurrency, functions...)
	for i, err := range errs {
		if err != nil {
			outcomes[i] = nodeOutcome{
				kind:    outcomeFailed,
				failure: &types.ItemFailure{Uuid: nodes[i].Uuid, Name: nodes[i].Name, Reason: err.Error()},
			}
		}
	}
	return outcomes
}

// resolveOne walks the decision ladder for a single extracted node. First
// match wins: exact identity, similarity against store candidates,
// judgment, new node.
func (r *Resolver) resolveOne(ctx context.Context, groupID string, node *types.EntityNode) nodeOutcome {
	if err := node.Validate(); err != nil {
		return nodeOutcome{
			kind:    outcomeFailed,
			failure: &types.ItemFailure{Uuid: node.Uuid, Name: node.Name, Reason: err.Error()},
		}
	}
	if node.GroupID == "" {
		node.GroupID = groupID
	}
	if node.NormalizedName == "" {
		node.NormalizedName = dedup.Normalize(node.Name)
	}

	// Exact identity: re-deriving from identical inputs yields the same
	// uuid, so reprocessed content lands on its existing node verbatim.
	derivedUuid := ident.NodeUUID(groupID, node.NormalizedName)
	existing, err := r.store.GetNode(ctx, derivedUuid, groupID)
	if err == nil && !existing.Retired() {
		return nodeOutcome{resolved: existing, kind: outcomeExact, pair: r.pairIfPersisted(ctx, groupID, node, existing)}
	}
	if err != nil && !errors.Is(err, types.ErrNodeNotFound) {
		return nodeOutcome{
			kind:    outcomeFailed,
			failure: &types.ItemFailure{Uuid: node.Uuid, Name: node.Name, Reason: err.Error()},
		}
	}

	candidates, err := r.store.SearchCandidates(ctx, groupID, node.NormalizedName, node.NameEmbedding, r.opts.CandidateLimit)
	if err != nil {
		// Conservative fallback: an unreachable store for candidate search
		// still must not lose the node.
		r.logger.Warn("candidate search failed, treating node as new", "name", node.Name, "error", err)
		candidates = nil
	}

	var survivors []*types.EntityNode
	for _, candidate := range candidates {
		if candidate.Uuid == node.Uuid || candidate.Retired() {
			continue
		}
		if dedup.IsCandidateDuplicate(node, candidate, r.opts.Match) {
			survivors = append(survivors, candidate)
		}
	}

	switch {
	case len(survivors) == 0:
		return r.asNewNode(ctx, groupID, node, derivedUuid)

	case len(survivors) == 1 && survivors[0].NormalizedName == node.NormalizedName:
		// Single survivor with an exact normalized-name hit: high enough
		// confidence to skip judgment.
		return nodeOutcome{resolved: survivors[0], kind: outcomeSimilarity, pair: r.pairIfPersisted(ctx, groupID, node, survivors[0])}

	default:
		return r.judgeNode(ctx, groupID, node, derivedUuid, survivors)
	}
}

// judgeNode delegates a borderline candidate to the judgment backend. Any
// backend failure resolves to "distinct": a wrong merge is worse than a
// duplicate the reconciler can catch later.
func (r *Resolver) judgeNode(ctx context.Context, groupID string, node *types.EntityNode, derivedUuid string, survivors []*types.EntityNode) nodeOutcome {
	judgeCtx, cancel := context.WithTimeout(ctx, r.opts.JudgeTimeout)
	defer cancel()

	verdict, err := r.judge.JudgeNode(judgeCtx, node, survivors)
	if err != nil {
		r.logger.Warn("judgment unavailable, declaring node distinct",
			"name", node.Name, "contenders", len(survivors), "error", err)
		outcome := r.asNewNode(ctx, groupID, node, derivedUuid)
		if outcome.kind == outcomeNew {
			outcome.kind = outcomeJudge
		}
		outcome.fallback = true
		return outcome
	}
	if verdict.Distinct() {
		outcome := r.asNewNode(ctx, groupID, node, derivedUuid)
		if outcome.kind == outcomeNew {
			outcome.kind = outcomeJudge
		}
		return outcome
	}
	if verdict.CanonicalIdx >= len(survivors) {
		// A backend is free to hallucinate an index past the contender
		// list. Treat it like any other malformed judgment.
		r.logger.Warn("judgment index out of range, declaring node distinct",
			"name", node.Name, "index", verdict.CanonicalIdx, "contenders", len(survivors))
		outcome := r.asNewNode(ctx, groupID, node, derivedUuid)
		if outcome.kind == outcomeNew {
			outcome.kind = outcomeJudge
		}
		outcome.fallback = true
		return outcome
	}
	chosen := survivors[verdict.CanonicalIdx]
	return nodeOutcome{resolved: chosen, kind: outcomeJudge, pair: r.pairIfPersisted(ctx, groupID, node, chosen)}
}

// asNewNode assigns the derived identity and persists the node.
func (r *Resolver) asNewNode(ctx context.Context, groupID string, node *types.EntityNode, derivedUuid string) nodeOutcome {
	fresh := *node
	fresh.Uuid = derivedUuid
	fresh.GroupID = groupID
	if fresh.CreatedAt.IsZero() {
		fresh.CreatedAt = time.Now().UTC()
	}
	if err := r.store.UpsertNode(ctx, &fresh); err != nil {
		return nodeOutcome{
			kind:    outcomeFailed,
			failure: &types.ItemFailure{Uuid: node.Uuid, Name: node.Name, Reason: err.Error()},
		}
	}
	return nodeOutcome{resolved: &fresh, kind: outcomeNew, createdNew: true}
}

// pairIfPersisted emits a merge pair only when the extracted node already
// exists in the store as a distinct live node: the reprocessing case where
// an older ingestion wrote it under a different identity.
func (r *Resolver) pairIfPersisted(ctx context.Context, groupID string, node *types.EntityNode, canonical *types.EntityNode) *types.DuplicatePair {
	if node.Uuid == "" || node.Uuid == canonical.Uuid {
		return nil
	}
	persisted, err := r.store.GetNode(ctx, node.Uuid, groupID)
	if err != nil || persisted.Retired() {
		return nil
	}
	return &types.DuplicatePair{Duplicate: persisted, Canonical: canonical}
}

// collectOutcomes folds per-node outcomes into a ResolveResult.
func (r *Resolver) collectOutcomes(groupID string, nodes []*types.EntityNode, outcomes []nodeOutcome) *types.ResolveResult {
	result := &types.ResolveResult{UuidMap: make(types.UuidMap)}

	for i, outcome := range outcomes {
		if outcome.createdNew {
			result.Stats.NewNodes++
		}
		switch outcome.kind {
		case outcomeExact:
			result.Stats.ExactMatches++
		case outcomeSimilarity:
			result.Stats.SimilarityHits++
		case outcomeJudge:
			result.Stats.JudgeCalls++
			if outcome.fallback {
				result.Stats.JudgeFallbacks++
			}
		case outcomeFailed:
			if outcome.failure != nil {
				result.Stats.Failures = append(result.Stats.Failures, *outcome.failure)
			}
			continue
		}

		if outcome.resolved == nil {
			continue
		}
		result.Nodes = append(result.Nodes, outcome.resolved)
		if nodes[i].Uuid != "" && nodes[i].Uuid != outcome.resolved.Uuid {
			result.UuidMap[nodes[i].Uuid] = outcome.resolved.Uuid
		}
		if outcome.pair != nil {
			result.DuplicatePairs = append(result.DuplicatePairs, *outcome.pair)
		}
	}
	return result
}

// persistEdges writes the episode's entity edges and MENTIONS edges after
// every node is resolved. Edge endpoints resolve through the uuid map;
// identities derive from the canonical endpoints so reprocessing is
// idempotent.
func (r *Resolver) persistEdges(ctx context.Context, episode *types.Episode, result *types.ResolveResult) {
	groupID := episode.Node.GroupID

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

	seen := make(map[string]bool)
	for _, node := range result.Nodes {
		if seen[node.Uuid] {
			continue
		}
		seen[node.Uuid] = true

		mention := &types.EpisodicEdge{
			Uuid:        ident.EdgeUUID(groupID, episode.Node.Uuid, node.Uuid, types.EdgeKindMentions, ""),
			GroupID:     groupID,
			EpisodeUuid: episode.Node.Uuid,
			EntityUuid:  node.Uuid,
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
