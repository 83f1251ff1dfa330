// Command memoryd is the per-user knowledge memory engine: a stdio
// request loop for the memory_* and self_* tools, a read-only dashboard,
// and a handful of maintenance subcommands, all built against one
// SQLite-backed store under $CLAUDE_MEMORY_DIR.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "memoryd",
	Short: "Persistent per-project knowledge memory engine",
	Long: `memoryd stores durable knowledge across coding sessions: facts,
preferences, decisions, and patterns recalled through a ranked blend of
lexical, semantic, fuzzy, and graph retrieval.

Run "memoryd serve" to start the stdio tool loop an assistant talks to,
or "memoryd dashboard" to browse stored knowledge in a browser.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
