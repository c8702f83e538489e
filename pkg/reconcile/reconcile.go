// Package reconcile implements the offline maintenance sweep: it scans a
// group's live entity nodes, clusters likely duplicates, and drives the
// merge executor over each cluster. Clusters with an overwhelming
// exact-name majority merge automatically; ambiguous members go to the
// judgment backend for a partition. Each cluster is one unit of work,
// checkpointed so an interrupted run resumes without repeating merges.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/oculairmedia/graphiti-sub006/pkg/checkpoint"
	"github.com/oculairmedia/graphiti-sub006/pkg/dedup"
	"github.com/oculairmedia/graphiti-sub006/pkg/driver"
	"github.com/oculairmedia/graphiti-sub006/pkg/merge"
	"github.com/oculairmedia/graphiti-sub006/pkg/nlp"
	"github.com/oculairmedia/graphiti-sub006/pkg/report"
	"github.com/oculairmedia/graphiti-sub006/pkg/types"
	"github.com/oculairmedia/graphiti-sub006/pkg/utils"
)

// DefaultBatchSize bounds how many pairs one merge call applies at once.
const DefaultBatchSize = 100

// DefaultJudgeTimeout bounds one cluster-partition call to the judge.
const DefaultJudgeTimeout = 60 * time.Second

const progressInterval = 25

// Options tunes one reconciliation run.
type Options struct {
	GroupID      string
	DryRun       bool
	BatchSize    int
	JudgeTimeout time.Duration

	// RunID keys checkpoints; empty defaults to the group id so a re-run of
	// the same group resumes where the last one stopped.
	RunID string
}

// Report summarizes one reconciliation run.
type Report struct {
	RunID                string           `json:"run_id"`
	GroupID              string           `json:"group_id"`
	DryRun               bool             `json:"dry_run"`
	NodesScanned         int              `json:"nodes_scanned"`
	ClustersFound        int              `json:"clusters_found"`
	ClustersProcessed    int              `json:"clusters_processed"`
	ClustersCheckpointed int              `json:"clusters_checkpointed"`
	AutoPairs            int              `json:"auto_pairs"`
	JudgePairs           int              `json:"judge_pairs"`
	JudgeCalls           int              `json:"judge_calls"`
	JudgeFallbacks       int              `json:"judge_fallbacks"`
	PairsPlanned         int              `json:"pairs_planned"`
	Merged               types.MergeStats `json:"merged"`
	Elapsed              time.Duration    `json:"elapsed"`
}

// Reconciler drives maintenance deduplication sweeps.
type Reconciler struct {
	store       driver.GraphStore
	judge       nlp.Judge
	executor    *merge.Executor
	checkpoints *checkpoint.Store
	reporter    *report.Writer
	match       dedup.MatchConfig
	logger      *slog.Logger
}

// New builds a reconciler. The checkpoint store and report writer are
// optional; a nil judge means every ambiguous cluster stays unmerged.
func New(store driver.GraphStore, judge nlp.Judge, executor *merge.Executor, checkpoints *checkpoint.Store, reporter *report.Writer, logger *slog.Logger) *Reconciler {
	if judge == nil {
		judge = nlp.NopJudge{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:       store,
		judge:       judge,
		executor:    executor,
		checkpoints: checkpoints,
		reporter:    reporter,
		match:       dedup.DefaultMatchConfig(),
		logger:      logger,
	}
}

// SetLogger replaces the reconciler's logger.
func (r *Reconciler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Run executes one sweep over a group. Clusters are processed in a stable
// order; a dry run computes the full plan without writing to the graph.
func (r *Reconciler) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.GroupID == "" {
		return nil, &types.ConfigurationError{Field: "group_id", Message: "required"}
	}
	if opts.RunID == "" {
		opts.RunID = opts.GroupID
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.JudgeTimeout <= 0 {
		opts.JudgeTimeout = DefaultJudgeTimeout
	}

	start := time.Now()
	rep := &Report{RunID: opts.RunID, GroupID: opts.GroupID, DryRun: opts.DryRun}

	nodes, err := r.store.ListNodes(ctx, opts.GroupID)
	if err != nil {
		return nil, fmt.Errorf("listing nodes for group %s: %w", opts.GroupID, err)
	}
	rep.NodesScanned = len(nodes)

	clusters := r.buildClusters(nodes)
	rep.ClustersFound = len(clusters)
	r.logger.Info("reconciliation sweep starting",
		"group_id", opts.GroupID,
		"run_id", opts.RunID,
		"nodes", rep.NodesScanned,
		"clusters", rep.ClustersFound,
		"dry_run", opts.DryRun)

	for i, cluster := range clusters {
		if err := ctx.Err(); err != nil {
			rep.Elapsed = time.Since(start)
			return rep, err
		}

		key := clusterKey(cluster)
		if !opts.DryRun && r.checkpoints != nil {
			done, err := r.checkpoints.IsDone(opts.RunID, key)
			if err != nil {
				return nil, fmt.Errorf("reading checkpoint for cluster %s: %w", key, err)
			}
			if done {
				rep.ClustersCheckpointed++
				continue
			}
		}

		plan := r.planCluster(ctx, cluster, opts)
		rep.AutoPairs += len(plan.autoPairs)
		rep.JudgePairs += len(plan.judgePairs)
		rep.JudgeCalls += plan.judgeCalls
		rep.JudgeFallbacks += plan.judgeFallbacks

		pairs := append(plan.autoPairs, plan.judgePairs...)
		if opts.DryRun {
			rep.PairsPlanned += len(pairs)
			r.recordPlanned(opts, key, plan)
		} else {
			r.applyCluster(ctx, opts, key, plan, pairs, rep)
			if r.checkpoints != nil {
				if err := r.checkpoints.MarkDone(opts.RunID, key); err != nil {
					return nil, fmt.Errorf("checkpointing cluster %s: %w", key, err)
				}
			}
		}
		r.recordDistinct(opts, key, plan)
		rep.ClustersProcessed++

		if (i+1)%progressInterval == 0 || i == len(clusters)-1 {
			elapsed := time.Since(start)
			remaining := time.Duration(0)
			if i+1 < len(clusters) {
				remaining = elapsed / time.Duration(i+1) * time.Duration(len(clusters)-i-1)
			}
			r.logger.Info("reconciliation progress",
				"clusters_done", i+1,
				"clusters_total", len(clusters),
				"pairs_merged", rep.Merged.PairsMerged,
				"elapsed", elapsed.Round(time.Second),
				"estimated_remaining", remaining.Round(time.Second))
		}
	}

	if !opts.DryRun && r.checkpoints != nil && len(rep.Merged.Failures) == 0 {
		if err := r.checkpoints.ClearRun(opts.RunID); err != nil {
			r.logger.Warn("clearing checkpoints failed", "run_id", opts.RunID, "error", err)
		}
	}

	rep.Elapsed = time.Since(start)
	r.logger.Info("reconciliation sweep complete",
		"group_id", opts.GroupID,
		"clusters_processed", rep.ClustersProcessed,
		"auto_pairs", rep.AutoPairs,
		"judge_pairs", rep.JudgePairs,
		"pairs_merged", rep.Merged.PairsMerged,
		"failures", len(rep.Merged.Failures),
		"elapsed", rep.Elapsed)
	return rep, nil
}

// buildClusters connects nodes whose names match at the strict thresholds
// into candidate clusters. Maintenance never considers pairs the online
// path would reject, and compound-name extensions never connect, so
// "Claude" and "Claude Code" land in separate clusters.
func (r *Reconciler) buildClusters(nodes []*types.EntityNode) [][]*types.EntityNode {
	idx := dedup.BuildCandidateIndex(nodes)

	uf := utils.NewUnionFind(nil)
	byUuid := make(map[string]*types.EntityNode, len(nodes))
	for _, node := range nodes {
		byUuid[node.Uuid] = node
		uf.Find(node.Uuid)

		normalized := node.NormalizedName
		if normalized == "" {
			normalized = dedup.Normalize(node.Name)
		}
		for _, other := range idx.ExactMatches(normalized) {
			if other.Uuid != node.Uuid {
				uf.Union(node.Uuid, other.Uuid)
			}
		}
		for _, other := range idx.FuzzyCandidates(normalized, dedup.DefaultCandidateLimit) {
			if other.Uuid == node.Uuid {
				continue
			}
			if dedup.IsCandidateDuplicate(node, other, r.match) {
				uf.Union(node.Uuid, other.Uuid)
			}
		}
	}

	members := make(map[string][]*types.EntityNode)
	for uuid := range byUuid {
		root := uf.Find(uuid)
		members[root] = append(members[root], byUuid[uuid])
	}

	clusters := make([][]*types.EntityNode, 0)
	for _, cluster := range members {
		if len(cluster) < 2 {
			continue
		}
		sort.Slice(cluster, func(i, j int) bool {
			if !cluster[i].CreatedAt.Equal(cluster[j].CreatedAt) {
				return cluster[i].CreatedAt.Before(cluster[j].CreatedAt)
			}
			return cluster[i].Uuid < cluster[j].Uuid
		})
		clusters = append(clusters, cluster)
	}
	sort.Slice(clusters, func(i, j int) bool {
		return clusterKey(clusters[i]) < clusterKey(clusters[j])
	})
	return clusters
}

// clusterKey is the smallest member uuid: stable across runs as long as
// cluster membership is stable, which is what checkpoint resumption needs.
func clusterKey(cluster []*types.EntityNode) string {
	key := cluster[0].Uuid
	for _, node := range cluster[1:] {
		if node.Uuid < key {
			key = node.Uuid
		}
	}
	return key
}

type clusterPlan struct {
	canonical      *types.EntityNode
	autoPairs      []types.DuplicatePair
	judgePairs     []types.DuplicatePair
	distinct       []*types.EntityNode
	distinctReason string
	judgeCalls     int
	judgeFallbacks int
}

// planCluster decides each member's fate. The cluster's largest
// exact-normalized-name family auto-merges into its earliest-created
// member when the family dominates the cluster; everything else goes to
// the judge for a partition. Judge failure leaves members distinct.
func (r *Reconciler) planCluster(ctx context.Context, cluster []*types.EntityNode, opts Options) clusterPlan {
	families := make(map[string][]*types.EntityNode)
	for _, node := range cluster {
		normalized := node.NormalizedName
		if normalized == "" {
			normalized = dedup.Normalize(node.Name)
		}
		families[normalized] = append(families[normalized], node)
	}

	var family []*types.EntityNode
	for _, members := range families {
		if len(members) > len(family) {
			family = members
		} else if len(members) == len(family) && len(members) > 0 &&
			members[0].CreatedAt.Before(family[0].CreatedAt) {
			family = members
		}
	}

	plan := clusterPlan{canonical: family[0]}
	fraction := float64(len(family)) / float64(len(cluster))
	if fraction < autoMergeBar(len(cluster)) {
		// No dominant family: the whole cluster is ambiguous.
		return r.judgePartition(ctx, cluster, opts, plan)
	}

	inFamily := make(map[string]bool, len(family))
	for _, node := range family {
		inFamily[node.Uuid] = true
		if node.Uuid != plan.canonical.Uuid {
			plan.autoPairs = append(plan.autoPairs, types.DuplicatePair{Duplicate: node, Canonical: plan.canonical})
		}
	}

	// Members outside the dominant family stay borderline: the judge decides
	// whether they attach to the canonical or stand alone.
	judgeSet := []*types.EntityNode{plan.canonical}
	for _, node := range cluster {
		if !inFamily[node.Uuid] {
			judgeSet = append(judgeSet, node)
		}
	}

	if len(judgeSet) < 2 {
		return plan
	}
	return r.judgePartition(ctx, judgeSet, opts, plan)
}

// judgePartition asks the judgment backend to partition the given members
// into same-referent groups and turns each group into pairs targeting its
// earliest-created member. Any failure leaves the members distinct.
func (r *Reconciler) judgePartition(ctx context.Context, members []*types.EntityNode, opts Options, plan clusterPlan) clusterPlan {
	plan.judgeCalls++

	judgeCtx, cancel := context.WithTimeout(ctx, opts.JudgeTimeout)
	defer cancel()

	groups, err := r.judge.JudgeCluster(judgeCtx, members)
	if err != nil {
		plan.judgeFallbacks++
		plan.distinct = append(plan.distinct, members...)
		plan.distinctReason = fmt.Sprintf("cluster judgment unavailable: %v", err)
		r.logger.Warn("cluster judgment failed, members kept distinct",
			"members", len(members), "error", err)
		return plan
	}

	for _, group := range groups {
		if len(group) < 2 {
			for _, idx := range group {
				if idx >= 0 && idx < len(members) && members[idx].Uuid != plan.canonical.Uuid {
					plan.distinct = append(plan.distinct, members[idx])
					plan.distinctReason = "judged distinct"
				}
			}
			continue
		}
		canonical := members[group[0]]
		for _, idx := range group[1:] {
			if members[idx].CreatedAt.Before(canonical.CreatedAt) {
				canonical = members[idx]
			}
		}
		for _, idx := range group {
			if members[idx].Uuid == canonical.Uuid {
				continue
			}
			plan.judgePairs = append(plan.judgePairs, types.DuplicatePair{Duplicate: members[idx], Canonical: canonical})
		}
	}
	return plan
}

// autoMergeBar returns the exact-name fraction a cluster must reach for
// its dominant family to merge without judgment. Larger clusters demand a
// stronger majority.
func autoMergeBar(size int) float64 {
	switch {
	case size <= 5:
		return 0.6
	case size <= 20:
		return 0.75
	case size <= 50:
		return 0.9
	default:
		return 0.95
	}
}

// applyCluster merges the planned pairs in bounded batches and records the
// per-pair outcomes.
func (r *Reconciler) applyCluster(ctx context.Context, opts Options, key string, plan clusterPlan, pairs []types.DuplicatePair, rep *Report) {
	judged := make(map[string]bool, len(plan.judgePairs))
	for _, pair := range plan.judgePairs {
		judged[pair.Duplicate.Uuid] = true
	}

	for _, batch := range utils.Batch(pairs, opts.BatchSize) {
		stats := r.executor.Execute(ctx, batch)
		rep.Merged.PairsProcessed += stats.PairsProcessed
		rep.Merged.PairsMerged += stats.PairsMerged
		rep.Merged.PairsSkipped += stats.PairsSkipped
		rep.Merged.EdgesRewired += stats.EdgesRewired
		rep.Merged.Failures = append(rep.Merged.Failures, stats.Failures...)

		if r.reporter == nil {
			continue
		}
		failed := make(map[string]string, len(stats.Failures))
		for _, failure := range stats.Failures {
			failed[failure.Uuid] = failure.Reason
		}
		for _, pair := range batch {
			record := report.PairRecord{
				GroupID:       opts.GroupID,
				ClusterKey:    key,
				DuplicateUuid: pair.Duplicate.Uuid,
				DuplicateName: pair.Duplicate.Name,
				CanonicalUuid: pair.Canonical.Uuid,
				CanonicalName: pair.Canonical.Name,
				Decision:      report.DecisionMerged,
				Confidence:    pairConfidence(pair),
				JudgeUsed:     judged[pair.Duplicate.Uuid],
			}
			if reason, ok := failed[pair.Duplicate.Uuid]; ok {
				record.Decision = report.DecisionFailed
				record.Reason = reason
			}
			if err := r.reporter.Record(record); err != nil {
				r.logger.Warn("recording audit row failed", "error", err)
			}
		}
	}
}

// recordPlanned writes dry-run rows for the pairs a real run would merge.
func (r *Reconciler) recordPlanned(opts Options, key string, plan clusterPlan) {
	if r.reporter == nil {
		return
	}
	judged := make(map[string]bool, len(plan.judgePairs))
	for _, pair := range plan.judgePairs {
		judged[pair.Duplicate.Uuid] = true
	}
	for _, pair := range append(append([]types.DuplicatePair{}, plan.autoPairs...), plan.judgePairs...) {
		record := report.PairRecord{
			GroupID:       opts.GroupID,
			ClusterKey:    key,
			DuplicateUuid: pair.Duplicate.Uuid,
			DuplicateName: pair.Duplicate.Name,
			CanonicalUuid: pair.Canonical.Uuid,
			CanonicalName: pair.Canonical.Name,
			Decision:      report.DecisionPlanned,
			Confidence:    pairConfidence(pair),
			JudgeUsed:     judged[pair.Duplicate.Uuid],
		}
		if err := r.reporter.Record(record); err != nil {
			r.logger.Warn("recording audit row failed", "error", err)
		}
	}
}

// recordDistinct writes rows for members the judge kept apart.
func (r *Reconciler) recordDistinct(opts Options, key string, plan clusterPlan) {
	if r.reporter == nil {
		return
	}
	for _, node := range plan.distinct {
		record := report.PairRecord{
			GroupID:       opts.GroupID,
			ClusterKey:    key,
			DuplicateUuid: node.Uuid,
			DuplicateName: node.Name,
			CanonicalUuid: plan.canonical.Uuid,
			CanonicalName: plan.canonical.Name,
			Decision:      report.DecisionDistinct,
			Reason:        plan.distinctReason,
			JudgeUsed:     true,
		}
		if err := r.reporter.Record(record); err != nil {
			r.logger.Warn("recording audit row failed", "error", err)
		}
	}
}

func pairConfidence(pair types.DuplicatePair) float64 {
	normA := pair.Duplicate.NormalizedName
	if normA == "" {
		normA = dedup.Normalize(pair.Duplicate.Name)
	}
	normB := pair.Canonical.NormalizedName
	if normB == "" {
		normB = dedup.Normalize(pair.Canonical.Name)
	}
	if normA == normB {
		return 1.0
	}
	return dedup.TokenOverlap(normA, normB)
}
