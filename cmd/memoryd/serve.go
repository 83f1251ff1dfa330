package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/claude-memory/memoryd/internal/lifecycle"
	"github.com/claude-memory/memoryd/internal/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the stdio tool request loop",
	Long: `serve reads one JSON tool request per line on stdin and writes one
JSON response per line on stdout. It is meant to be spawned by an
assistant's tool runner, not run interactively.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe is a single-threaded, cooperative request loop: one request is
// read, dispatched, and fully answered before the next line is read. There
// is no concurrent request handling by design, since the underlying store
// serializes writes through a single advisory lock anyway.
func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	engine, _, err := bootstrap(ctx)
	if err != nil {
		return err
	}

	if n, err := lifecycle.SweepObservations(ctx, engine.Store, 30*24*time.Hour, time.Now().UTC()); err != nil {
		engine.Log.Warn().Err(err).Msg("observation sweep at startup failed")
	} else if n > 0 {
		engine.Log.Info().Int64("removed", n).Msg("swept stale observations at startup")
	}

	engine.Log.Info().Msg("memoryd serve: ready")
	return serveLoop(ctx, engine, os.Stdin, os.Stdout)
}

func serveLoop(ctx context.Context, engine *tools.Engine, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req tools.Request
		if err := json.Unmarshal(line, &req); err != nil {
			if encErr := enc.Encode(tools.Response{Success: false, Error: fmt.Sprintf("invalid request: %v", err)}); encErr != nil {
				return encErr
			}
			continue
		}

		resp := engine.Dispatch(ctx, req)
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return scanner.Err()
}
