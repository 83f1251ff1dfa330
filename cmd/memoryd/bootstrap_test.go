package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"testing"

	"github.com/spf13/cobra"
)

func testCmd(ctx context.Context) *cobra.Command {
	c := &cobra.Command{}
	c.SetContext(ctx)
	return c
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()
	w.Close()
	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func TestBootstrapOpensEveryComponent(t *testing.T) {
	t.Setenv("CLAUDE_MEMORY_DIR", t.TempDir())
	ctx := context.Background()

	engine, cfg, err := bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if engine.Store == nil || engine.Vectors == nil || engine.Queue == nil || engine.Pipeline == nil {
		t.Fatalf("expected every core component wired on the engine, got %+v", engine)
	}
	if cfg.MemoryDir == "" {
		t.Fatalf("expected a resolved memory directory")
	}
}

func TestRunMigrateIsIdempotent(t *testing.T) {
	t.Setenv("CLAUDE_MEMORY_DIR", t.TempDir())
	cmd := testCmd(context.Background())

	if err := runMigrate(cmd, nil); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := runMigrate(cmd, nil); err != nil {
		t.Fatalf("second migrate on an already-migrated store: %v", err)
	}
}

func TestRunStatsPrintsJSON(t *testing.T) {
	t.Setenv("CLAUDE_MEMORY_DIR", t.TempDir())
	cmd := testCmd(context.Background())
	statsProject = ""

	out := captureStdout(t, func() {
		if err := runStats(cmd, nil); err != nil {
			t.Fatalf("run stats: %v", err)
		}
	})
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("expected stats output to be JSON, got %q: %v", out, err)
	}
}

func TestRunRetentionDryRunDoesNotError(t *testing.T) {
	t.Setenv("CLAUDE_MEMORY_DIR", t.TempDir())
	cmd := testCmd(context.Background())
	retentionDryRun = true

	out := captureStdout(t, func() {
		if err := runRetention(cmd, nil); err != nil {
			t.Fatalf("run retention: %v", err)
		}
	})
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("expected retention output to be JSON, got %q: %v", out, err)
	}
}
