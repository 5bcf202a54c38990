package cmd

import (
	"fmt"
	"os"

	"github.com/iksnae/bob-the-lawyer/internal"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	dbPath     string
	configPath string
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bob",
	Short: "Ask Bob the Lawyer legal questions from your terminal",
	Long: `Bob the Lawyer keeps independent legal discussions, answers questions with a
local or remote language model, and reads the documents you attach.

Discussions are stored in a local SQLite database (or PostgreSQL when
configured) so every conversation survives restarts.

Features:
  • Numbered discussions that are never renumbered or reused
  • Replies from a remote model service, a local model, or a mock backend
  • Attach PDF, Word, PowerPoint, Excel, text and image files
  • Export discussions (JSONL, Markdown, YAML, JSON)
  • Local HTTP/WebSocket service with Prometheus metrics

Quick Start:
  bob new                                  # Start a discussion
  bob ask discussion_1 "Can my landlord keep my deposit?"
  bob ask discussion_1 --attach lease.pdf  # Analyze a document
  bob chat discussion_1                    # Interactive session`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetVerbose(verbose)
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database location (data directory, SQLite file, or postgres:// URL)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (default <data dir>/config.yaml)")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
