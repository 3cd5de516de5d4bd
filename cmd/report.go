package cmd

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-research/genframe/internal/graph"
	"github.com/agentic-research/genframe/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report [output.xlsx]",
	Short: "Write the analysis workbook to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		factory, err := graph.Open(cfg.GraphOptions())
		if err != nil {
			return fmt.Errorf("open graph: %w", err)
		}
		defer func() { _ = factory.Close(context.Background()) }() // safe to ignore

		a := &report.Assembler{Graph: factory, Logger: slog.Default()}
		if cfg.Storage.ArtifactsFile != "" {
			a.Artifacts = report.FileArtifacts{Path: cfg.Storage.ArtifactsFile}
		}
		return writeReport(cmd.Context(), a, args[0])
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

// writeReport assembles the workbook and writes it to path. Nothing is
// written when every sheet is empty.
func writeReport(ctx context.Context, a *report.Assembler, path string) error {
	r, err := a.Assemble(ctx)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := report.WriteWorkbook(&buf, r); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("Wrote %s (%s).\n", path, r.Outcome())
	return nil
}
