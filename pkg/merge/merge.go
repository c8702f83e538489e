// Package merge turns duplicate pairs into transactional graph surgery:
// edges are rewired onto the canonical node, attributes absorbed, an audit
// edge written, and the duplicate retired. Pairs targeting the same
// canonical node are serialized; unrelated pairs run concurrently.
package merge

import (
	"context"
	"log/slog"
	"time"

	"github.com/oculairmedia/graphiti-sub006/pkg/driver"
	"github.com/oculairmedia/graphiti-sub006/pkg/ident"
	"github.com/oculairmedia/graphiti-sub006/pkg/types"
	"github.com/oculairmedia/graphiti-sub006/pkg/utils"
)

// CanonicalPolicy selects which side of a pair survives a merge when the
// resolution step did not explicitly choose.
type CanonicalPolicy string

const (
	// PolicyEarliestCreated keeps the earlier-created node. The default.
	PolicyEarliestCreated CanonicalPolicy = "earliest-created"
	// PolicyPreferAttributes keeps the node carrying more attributes,
	// breaking ties by creation time.
	PolicyPreferAttributes CanonicalPolicy = "prefer-attributes"
)

// Options tunes one executor instance.
type Options struct {
	Policy         CanonicalPolicy
	Retire         driver.RetireMode
	MaxConcurrency int
}

// DefaultOptions returns production defaults: earliest-created canonical,
// soft retirement.
func DefaultOptions() Options {
	return Options{
		Policy:         PolicyEarliestCreated,
		Retire:         driver.RetireModeSoft,
		MaxConcurrency: utils.DefaultSemaphoreLimit,
	}
}

// Executor applies duplicate pairs to the store.
type Executor struct {
	store  driver.GraphStore
	opts   Options
	locks  *utils.KeyedMutex
	logger *slog.Logger
}

// NewExecutor builds a merge executor.
func NewExecutor(store driver.GraphStore, opts Options, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Policy == "" {
		opts.Policy = PolicyEarliestCreated
	}
	if opts.Retire == "" {
		opts.Retire = driver.RetireModeSoft
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = utils.GetSemaphoreLimit()
	}
	return &Executor{store: store, opts: opts, locks: utils.NewKeyedMutex(), logger: logger}
}

// Execute merges every pair. Pairs run concurrently, bounded by the
// executor's limit, except that pairs sharing a canonical node are
// serialized to avoid lost updates on attribute merging. A failed pair is
// reported in the stats and never aborts its siblings.
func (e *Executor) Execute(ctx context.Context, pairs []types.DuplicatePair) types.MergeStats {
	start := time.Now()
	stats := types.MergeStats{PairsProcessed: len(pairs)}
	if len(pairs) == 0 {
		return stats
	}

	type pairOutcome struct {
		rewired int
		skipped bool
		failure *types.ItemFailure
	}

	functions := make([]func() (pairOutcome, error), len(pairs))
	for i, pair := range pairs {
		pair := pair
		functions[i] = func() (pairOutcome, error) {
			rewired, skipped, err := e.mergePair(ctx, pair)
			if err != nil {
				return pairOutcome{failure: &types.ItemFailure{
					Uuid:   pair.Duplicate.Uuid,
					Name:   pair.Duplicate.Name,
					Reason: err.Error(),
				}}, nil
			}
			return pairOutcome{rewired: rewired, skipped: skipped}, nil
		}
	}

	outcomes, errs := utils.SemaphoreGatherWithResults(ctx, e.opts.MaxConcurrency, functions...)
	for i, err := range errs {
		if err != nil {
			outcomes[i] = pairOutcome{failure: &types.ItemFailure{
				Uuid:   pairs[i].Duplicate.Uuid,
				Name:   pairs[i].Duplicate.Name,
				Reason: err.Error(),
			}}
		}
	}

	for _, outcome := range outcomes {
		switch {
		case outcome.failure != nil:
			stats.Failures = append(stats.Failures, *outcome.failure)
		case outcome.skipped:
			stats.PairsSkipped++
		default:
			stats.PairsMerged++
			stats.EdgesRewired += outcome.rewired
		}
	}
	stats.Elapsed = time.Since(start)

	e.logger.Info("merge pass complete",
		"pairs", stats.PairsProcessed,
		"merged", stats.PairsMerged,
		"skipped", stats.PairsSkipped,
		"edges_rewired", stats.EdgesRewired,
		"failures", len(stats.Failures),
		"elapsed", stats.Elapsed)
	return stats
}

// mergePair merges one pair under the canonical node's lock. Returns
// skipped=true when the pair is already merged or degenerate.
func (e *Executor) mergePair(ctx context.Context, pair types.DuplicatePair) (int, bool, error) {
	if pair.Duplicate == nil || pair.Canonical == nil {
		return 0, true, nil
	}

	duplicate, canonical := e.orient(pair.Duplicate, pair.Canonical)
	if duplicate.Uuid == canonical.Uuid {
		return 0, true, nil
	}

	e.locks.Lock(canonical.Uuid)
	defer e.locks.Unlock(canonical.Uuid)

	// Re-read both sides under the lock; a sibling merge may have retired
	// the duplicate already.
	current, err := e.store.GetNode(ctx, duplicate.Uuid, duplicate.GroupID)
	if err != nil {
		return 0, false, err
	}
	if current.Retired() {
		return 0, true, nil
	}
	canonCurrent, err := e.store.GetNode(ctx, canonical.Uuid, canonical.GroupID)
	if err != nil {
		return 0, false, err
	}
	if canonCurrent.Retired() {
		return 0, false, &types.DataIntegrityError{Uuid: canonical.Uuid, Reason: "canonical node retired by a concurrent merge"}
	}

	summary, attrs := absorb(canonCurrent, current)
	rewired, err := e.store.MergeNodes(ctx, driver.MergeRequest{
		GroupID:       canonical.GroupID,
		DuplicateUuid: current.Uuid,
		CanonicalUuid: canonCurrent.Uuid,
		MergedSummary: summary,
		MergedAttrs:   attrs,
		AuditEdgeUuid: ident.NewUuid(),
		Retire:        e.opts.Retire,
	})
	if err != nil {
		return 0, false, err
	}

	e.logger.Debug("merged duplicate node",
		"duplicate", current.Uuid,
		"canonical", canonCurrent.Uuid,
		"group_id", canonical.GroupID,
		"edges_rewired", rewired)
	return rewired, false, nil
}

// orient applies the canonical policy when the resolution step's choice is
// ambiguous: the pair's canonical side wins unless the policy says the
// duplicate should survive instead.
func (e *Executor) orient(duplicate, canonical *types.EntityNode) (*types.EntityNode, *types.EntityNode) {
	switch e.opts.Policy {
	case PolicyPreferAttributes:
		if len(duplicate.Attributes) > len(canonical.Attributes) {
			return canonical, duplicate
		}
		if len(duplicate.Attributes) == len(canonical.Attributes) && duplicate.CreatedAt.Before(canonical.CreatedAt) {
			return canonical, duplicate
		}
	default: // PolicyEarliestCreated
		if !duplicate.CreatedAt.IsZero() && duplicate.CreatedAt.Before(canonical.CreatedAt) {
			return canonical, duplicate
		}
	}
	return duplicate, canonical
}

// absorb merges the duplicate's summary and attributes into the
// canonical's: the duplicate fills gaps, the canonical wins on conflict.
func absorb(canonical, duplicate *types.EntityNode) (string, map[string]interface{}) {
	summary := canonical.Summary
	if summary == "" {
		summary = duplicate.Summary
	}

	attrs := make(map[string]interface{}, len(canonical.Attributes)+len(duplicate.Attributes))
	for k, v := range duplicate.Attributes {
		attrs[k] = v
	}
	for k, v := range canonical.Attributes {
		attrs[k] = v
	}
	return summary, attrs
}
