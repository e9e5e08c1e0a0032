// Package main provides the entry point for the gemini-crawler CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for gemini-crawler.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gemini-crawler",
		Short: "Concurrent crawler for the Gemini protocol",
		Long: `gemini-crawler walks Geminispace from one or more seed URLs,
fetching pages over gemini://, extracting gemtext links, and building a
link graph of the capsules it visits.

Crawls are throttled per host and bounded globally. Results are stored
in a local SQLite database and can be exported as text, JSON, Markdown,
or Graphviz DOT.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
