// Package cmd provides the CLI commands for Quarry.
package cmd

import (
	"github.com/spf13/cobra"
)

// Persistent flags shared by all commands.
var (
	configPath string
	offline    bool
	logLevel   string
)

// NewRootCmd creates the root command for the quarry CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarry",
		Short: "Local hybrid-search knowledge base",
		Long: `Quarry ingests documents into a local knowledge base and answers
queries by fusing dense vector similarity with lexical keyword search.

Documents run through a parse, chunk, embed, store pipeline with
tracked progress; queries fan out over both indexes concurrently and
merge with Reciprocal Rank Fusion.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.SetVersionTemplate("quarry version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	cmd.PersistentFlags().BoolVar(&offline, "offline", false, "Use static embeddings (no embedding server)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
