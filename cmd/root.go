// Package cmd implements the bridge's command-line interface: a cobra root
// command with load, listen and version subcommands, in place of the
// teacher's multi-domain HTTP service CLI. load wires the file-queue, router,
// handlers, updater, and docstore adapter together.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// RootCmd is the kaijs-bridge entry point.
var RootCmd = &cobra.Command{
	Use:   "kaijs-bridge",
	Short: "Bridges CI/build broker events into a document store",
	Long: `kaijs-bridge consumes CI/build events from an AMQP broker via a
durable on-disk file-queue, assembles them into per-artifact documents, and
writes them to MongoDB or OpenSearch with optimistic concurrency control.`,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml/json/toml)")
	RootCmd.AddCommand(loadCmd)
}

// Execute runs the root command, exiting the process on error per the
// bridge's documented process contract (exit 1 on fatal init failure).
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
