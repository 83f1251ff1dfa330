package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/claude-memory/memoryd/internal/lifecycle"
)

// defaultRetentionConfidence is the confidence ceiling below which an
// otherwise decay-eligible item is also considered for archival.
const defaultRetentionConfidence = 0.3

var retentionDryRun bool

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Archive stale knowledge and purge long-archived knowledge",
	Long: `retention applies the engine's retention policy directly: items
past archive_after_days with low confidence move to archived, and items
past purge_after_days move to purged, dropping their embeddings from the
vector index. This is an explicit, operator-invoked command, not a tool
an assistant calls mid-session.`,
	RunE: runRetention,
}

func init() {
	retentionCmd.Flags().BoolVar(&retentionDryRun, "dry-run", false, "report what would change without mutating anything")
	rootCmd.AddCommand(retentionCmd)
}

func runRetention(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	engine, cfg, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	result, err := lifecycle.ApplyRetention(
		ctx, engine.Store, engine.Vectors,
		time.Duration(cfg.ArchiveAfterDays)*24*time.Hour,
		time.Duration(cfg.PurgeAfterDays)*24*time.Hour,
		defaultRetentionConfidence, retentionDryRun, now,
	)
	if err != nil {
		return fmt.Errorf("apply retention: %w", err)
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
