package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/claude-memory/memoryd/internal/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve the read-only web dashboard",
	Long: `dashboard starts an HTTP server exposing stats, a paginated
knowledge browser, per-item version history, a recent-sessions list, and
a relation graph, all read-only against the same store memoryd serve
uses.`,
	RunE: runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine, cfg, err := bootstrap(ctx)
	if err != nil {
		return err
	}

	srv := &dashboard.Server{Store: engine.Store, MemoryDir: cfg.MemoryDir, Log: engine.Log}
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.DashboardPort)

	httpServer := &http.Server{Addr: addr, Handler: srv.Router()}
	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	engine.Log.Info().Str("addr", addr).Msg("dashboard listening")
	fmt.Printf("dashboard listening on http://%s\n", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
