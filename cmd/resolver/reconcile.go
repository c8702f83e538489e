package resolver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	engine "github.com/oculairmedia/graphiti-sub006"
	"github.com/oculairmedia/graphiti-sub006/pkg/config"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Sweep a group for accumulated duplicate entities",
	Long: `Reconcile scans all live entity nodes in a group, clusters likely
duplicates, and merges them into canonical records. Clusters with an
overwhelming exact-name majority merge automatically; ambiguous clusters
are partitioned by the judgment backend.

Each cluster is checkpointed, so an interrupted sweep resumes where it
stopped. Use --dry-run to see the plan without writing to the graph.`,
	RunE: runReconcile,
}

var (
	reconcileGroup     string
	reconcileDryRun    bool
	reconcileBatchSize int
)

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVar(&reconcileGroup, "group", "", "Group ID to reconcile (required)")
	reconcileCmd.Flags().BoolVar(&reconcileDryRun, "dry-run", false, "Compute the merge plan without applying it")
	reconcileCmd.Flags().IntVar(&reconcileBatchSize, "batch-size", 0, "Pairs per merge batch (0 uses the configured default)")
	reconcileCmd.MarkFlagRequired("group")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if reconcileBatchSize <= 0 {
		reconcileBatchSize = cfg.Reconcile.BatchSize
	}

	client, err := engine.New(cfg, slog.Default())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer client.Close(ctx)

	rep, err := client.RunReconciliation(ctx, reconcileGroup, reconcileDryRun, reconcileBatchSize)
	if rep != nil {
		encoded, encErr := json.MarshalIndent(rep, "", "  ")
		if encErr == nil {
			fmt.Fprintln(os.Stdout, string(encoded))
		}
	}
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}
	return nil
}
