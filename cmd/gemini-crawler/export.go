package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cacharle/gemini-crawler/internal/config"
	"github.com/cacharle/gemini-crawler/internal/database"
	"github.com/cacharle/gemini-crawler/internal/report"
)

// NewExportCmd creates the export command.
// This command re-emits stored crawl runs in any report format.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a stored crawl run",
		Long: `Export loads a crawl run from the local database and writes it in the
requested format. Without --run the most recent run is exported.

Examples:
  # Export the latest run as Graphviz DOT
  gemini-crawler export --dot -o graph.dot

  # Export a specific run as JSON
  gemini-crawler export --run 4f5e... --json

  # List all stored runs
  gemini-crawler export --list`,
		Args: cobra.NoArgs,
		RunE: runExportCmd,
	}

	cmd.Flags().StringP("run", "r", "",
		"Run ID to export (default: most recent run)")
	cmd.Flags().BoolP("list", "l", false,
		"List all stored runs instead of exporting")

	// Output format flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report")
	cmd.Flags().Bool("dot", false,
		"Output the link graph as Graphviz DOT")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runExportCmd executes the export command.
func runExportCmd(cmd *cobra.Command, _ []string) error {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)

	var err error
	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	cfg.DOTReport, err = cmd.Flags().GetBool("dot")
	if err != nil {
		return err
	}
	cfg.ReportFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	runID, err := cmd.Flags().GetString("run")
	if err != nil {
		return err
	}
	list, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}

	// Open the database read-only; export never creates one.
	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(config.XDGDataDir(), opts)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	if list {
		return listRuns(ctx, cmd, db)
	}

	record, err := db.Run(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}

	snap, err := db.LoadSnapshot(ctx, record.ID)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	summary := &report.Summary{
		RunID:      record.ID,
		Seeds:      record.Seeds,
		StartedAt:  record.StartedAt,
		FinishedAt: record.FinishedAt,
		Snapshot:   snap,
	}

	return outputReport(cfg, summary)
}

// listRuns prints every stored run, most recent first.
func listRuns(ctx context.Context, cmd *cobra.Command, db *database.GraphDB) error {
	records, err := db.ListRuns(ctx)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No stored runs.")
		return nil
	}

	for _, record := range records {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  nodes=%d edges=%d fetched=%d failed=%d\n",
			record.ID,
			record.StartedAt.Local().Format("2006-01-02 15:04:05"),
			record.NodeCount,
			record.EdgeCount,
			record.Fetched,
			record.Failed,
		)
	}
	return nil
}
