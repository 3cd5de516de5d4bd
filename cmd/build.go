package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-research/genframe/internal/ingest"
)

var buildCmd = &cobra.Command{
	Use:   "build [export.json] [output.db]",
	Short: "Build a SQLite graph from a Neo4j APOC JSON export",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, output := args[0], args[1]

		start := time.Now()
		fmt.Printf("Building %s from %s...\n", output, source)
		stats, err := buildGraph(source, output, slog.Default())
		if err != nil {
			return err
		}
		fmt.Printf("Done in %v: %d nodes, %d relationships, %d skipped.\n",
			time.Since(start), stats.Nodes, stats.Relationships, stats.Skipped)
		return nil
	},
}

// buildGraph ingests source into a temporary database beside output and
// renames it into place once the writer has flushed. A failed build leaves
// any existing output untouched.
func buildGraph(source, output string, logger *slog.Logger) (stats ingest.Stats, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(output), ".genframe-*.db")
	if err != nil {
		return stats, fmt.Errorf("create temp database: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close() // sqlite reopens it
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath) // best-effort cleanup
		}
	}()

	writer, err := ingest.NewSQLiteWriter(tmpPath)
	if err != nil {
		return stats, err
	}
	engine, err := ingest.NewEngine(writer, logger)
	if err != nil {
		_ = writer.Close()
		return stats, err
	}
	stats, err = engine.Ingest(source)
	if err != nil {
		_ = writer.Close()
		return stats, err
	}
	if err = writer.Close(); err != nil {
		return stats, fmt.Errorf("finish %s: %w", output, err)
	}
	if err = os.Rename(tmpPath, output); err != nil {
		return stats, fmt.Errorf("replace %s: %w", output, err)
	}
	return stats, nil
}

func init() {
	rootCmd.AddCommand(buildCmd)
}
