package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oculairmedia/graphiti-sub006/pkg/checkpoint"
	"github.com/oculairmedia/graphiti-sub006/pkg/config"
	"github.com/oculairmedia/graphiti-sub006/pkg/dedup"
	"github.com/oculairmedia/graphiti-sub006/pkg/driver"
	"github.com/oculairmedia/graphiti-sub006/pkg/embedder"
	"github.com/oculairmedia/graphiti-sub006/pkg/merge"
	"github.com/oculairmedia/graphiti-sub006/pkg/nlp"
	"github.com/oculairmedia/graphiti-sub006/pkg/reconcile"
	"github.com/oculairmedia/graphiti-sub006/pkg/report"
	"github.com/oculairmedia/graphiti-sub006/pkg/resolution"
	"github.com/oculairmedia/graphiti-sub006/pkg/types"
)

// Client ties the resolution pipeline, the merge executor, and the
// maintenance reconciler together behind one entry point.
type Client struct {
	store    driver.GraphStore
	judge    nlp.Judge
	embedder embedder.Client
	resolver *resolution.Resolver
	executor *merge.Executor
	cfg      *config.Config
	logger   *slog.Logger
}

// New builds a client against the configured Neo4j backend. The judgment
// and embedding backends are optional: without an API key the engine runs
// name-only and treats every borderline candidate as distinct.
func New(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	store, err := driver.NewNeo4jStore(cfg.Database.URI, cfg.Database.Username, cfg.Database.Password, cfg.Database.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to graph backend: %w", err)
	}

	var judge nlp.Judge = nlp.NopJudge{}
	if cfg.NLP.APIKey != "" {
		base, err := nlp.NewOpenAIJudge(cfg.NLP.APIKey, nlp.Config{
			Model:       cfg.NLP.Model,
			BaseURL:     cfg.NLP.BaseURL,
			Temperature: cfg.NLP.Temperature,
			MaxTokens:   cfg.NLP.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("building judgment backend: %w", err)
		}
		judge = nlp.NewBreakerJudge(nlp.NewRetryJudge(base, nil), logger)
	}

	var embed embedder.Client = embedder.NopEmbedder{}
	if cfg.Embedding.APIKey != "" {
		embed, err = embedder.NewOpenAIEmbedder(cfg.Embedding.APIKey, embedder.OpenAIConfig{
			Model:      cfg.Embedding.Model,
			BaseURL:    cfg.Embedding.BaseURL,
			Dimensions: cfg.Embedding.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("building embedding backend: %w", err)
		}
	}

	return NewWithBackends(store, judge, embed, cfg, logger)
}

// NewWithBackends builds a client on caller-supplied backends. Used by
// tests and by embedders that bring their own store.
func NewWithBackends(store driver.GraphStore, judge nlp.Judge, embed embedder.Client, cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if judge == nil {
		judge = nlp.NopJudge{}
	}
	if embed == nil {
		embed = embedder.NopEmbedder{}
	}

	opts := resolution.Options{
		Match: dedup.MatchConfig{
			NameThreshold:      cfg.Resolution.NameThreshold,
			EmbeddingThreshold: cfg.Resolution.EmbeddingThreshold,
		},
		BulkNameThreshold: cfg.Resolution.BulkNameThreshold,
		CandidateLimit:    cfg.Resolution.CandidateLimit,
		MaxConcurrency:    cfg.Resolution.MaxConcurrency,
		JudgeTimeout:      time.Duration(cfg.Resolution.JudgeTimeoutSeconds) * time.Second,
		EmbedTimeout:      time.Duration(cfg.Resolution.EmbedTimeoutSeconds) * time.Second,
	}
	res, err := resolution.NewResolver(store, judge, embed, opts, logger)
	if err != nil {
		return nil, err
	}

	executor := merge.NewExecutor(store, merge.Options{
		Policy:         merge.CanonicalPolicy(cfg.Merge.CanonicalPolicy),
		Retire:         driver.RetireMode(cfg.Merge.RetireMode),
		MaxConcurrency: cfg.Resolution.MaxConcurrency,
	}, logger)

	return &Client{
		store:    store,
		judge:    judge,
		embedder: embed,
		resolver: res,
		executor: executor,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// ResolveEpisode resolves one episode's extracted nodes and edges against
// the live graph and applies any duplicate merges the pass discovered.
func (c *Client) ResolveEpisode(ctx context.Context, episode *types.Episode) (*types.ResolveResult, error) {
	result, err := c.resolver.ResolveEpisode(ctx, episode)
	if err != nil {
		return nil, err
	}
	c.applyPairs(ctx, result.DuplicatePairs)
	return result, nil
}

// ResolveBatch resolves a batch of episodes, collapsing in-batch
// duplicates before touching the store, then applies discovered merges.
func (c *Client) ResolveBatch(ctx context.Context, episodes []*types.Episode) (*types.BatchResolveResult, error) {
	result, err := c.resolver.ResolveBatch(ctx, episodes)
	if err != nil {
		return nil, err
	}
	c.applyPairs(ctx, result.DuplicatePairs)
	return result, nil
}

// MergeDuplicates applies externally discovered duplicate pairs.
func (c *Client) MergeDuplicates(ctx context.Context, pairs []types.DuplicatePair) types.MergeStats {
	return c.executor.Execute(ctx, pairs)
}

func (c *Client) applyPairs(ctx context.Context, pairs []types.DuplicatePair) {
	if len(pairs) == 0 {
		return
	}
	stats := c.executor.Execute(ctx, pairs)
	if len(stats.Failures) > 0 {
		c.logger.Warn("some duplicate merges failed",
			"merged", stats.PairsMerged, "failed", len(stats.Failures))
	}
}

// RunReconciliation sweeps one group for accumulated duplicates. The run
// checkpoints per cluster and writes a parquet audit trail; a dry run
// reports the plan without writing to the graph.
func (c *Client) RunReconciliation(ctx context.Context, groupID string, dryRun bool, batchSize int) (*reconcile.Report, error) {
	checkpoints, err := checkpoint.Open(c.cfg.Reconcile.CheckpointPath)
	if err != nil {
		return nil, err
	}
	defer checkpoints.Close()

	writer, err := report.NewWriter(c.cfg.Reconcile.ReportPath, groupID)
	if err != nil {
		return nil, err
	}

	reconciler := reconcile.New(c.store, c.judge, c.executor, checkpoints, writer, c.logger)
	rep, runErr := reconciler.Run(ctx, reconcile.Options{
		GroupID:   groupID,
		DryRun:    dryRun,
		BatchSize: batchSize,
	})
	if err := writer.Close(); err != nil {
		c.logger.Warn("flushing audit report failed", "error", err)
	}
	return rep, runErr
}

// Close releases the backends.
func (c *Client) Close(ctx context.Context) error {
	if err := c.judge.Close(); err != nil {
		c.logger.Warn("closing judgment backend failed", "error", err)
	}
	if err := c.embedder.Close(); err != nil {
		c.logger.Warn("closing embedding backend failed", "error", err)
	}
	return c.store.Close(ctx)
}
