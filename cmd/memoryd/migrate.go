package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/claude-memory/memoryd/internal/config"
	"github.com/claude-memory/memoryd/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations and exit",
	Long: `migrate opens the store, which runs every pending migration as
part of opening, then exits. Useful for running migrations ahead of time
in a deploy step instead of paying that cost on the first serve/dashboard
startup.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("ensure memory directories: %w", err)
	}
	log := stderrLogger()
	if _, err := store.Open(ctx, cfg.DBPath(), cfg.LockPath(), log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	fmt.Println("migrations up to date")
	return nil
}
