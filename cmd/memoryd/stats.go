package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/claude-memory/memoryd/internal/timeline"
)

var statsProject string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print aggregate knowledge and health statistics",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsProject, "project", "", "restrict to one project")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	engine, cfg, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	result, err := timeline.ComputeStats(ctx, engine.Store, cfg.MemoryDir, statsProject, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("compute stats: %w", err)
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
