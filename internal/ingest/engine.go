package ingest

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ohler55/ojg/oj"
)

// Stats counts what an ingestion run wrote and skipped.
type Stats struct {
	Nodes         int
	Relationships int
	Skipped       int
}

// Engine reads a Neo4j APOC JSON export and feeds it to a Target. The export
// may be JSON lines (one entry per line) or a single JSON array of entries.
type Engine struct {
	Target Target
	Logger *slog.Logger

	paths *exportPaths
}

func NewEngine(target Target, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	paths, err := compileExportPaths()
	if err != nil {
		return nil, err
	}
	return &Engine{Target: target, Logger: logger, paths: paths}, nil
}

// Ingest reads the export at path.
func (e *Engine) Ingest(path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open export %s: %w", path, err)
	}
	defer func() { _ = f.Close() }() // safe to ignore

	stats, err := e.IngestReader(f)
	if err != nil {
		return stats, fmt.Errorf("ingest %s: %w", path, err)
	}
	return stats, nil
}

// IngestReader streams entries from r. Parsing stops at the first Target
// error.
func (e *Engine) IngestReader(r io.Reader) (Stats, error) {
	var (
		stats   Stats
		pushErr error
	)

	push := func(entry any) bool {
		n, rel, ok := e.paths.decode(entry)
		switch {
		case !ok:
			stats.Skipped++
		case n != nil:
			if pushErr = e.Target.AddNode(*n); pushErr != nil {
				pushErr = fmt.Errorf("add node %s: %w", n.ID, pushErr)
				return true
			}
			stats.Nodes++
		case rel != nil:
			if pushErr = e.Target.AddRelationship(*rel); pushErr != nil {
				pushErr = fmt.Errorf("add relationship %s %s->%s: %w", rel.Type, rel.Start, rel.End, pushErr)
				return true
			}
			stats.Relationships++
		}
		return false
	}

	// The callback sees each top-level document. Returning true aborts.
	_, err := oj.Load(r, func(doc any) bool {
		if list, isList := doc.([]any); isList {
			for _, entry := range list {
				if push(entry) {
					return true
				}
			}
			return false
		}
		return push(doc)
	})
	if pushErr != nil {
		return stats, pushErr
	}
	if err != nil {
		return stats, fmt.Errorf("parse export: %w", err)
	}

	e.Logger.Info("export ingested",
		"nodes", stats.Nodes,
		"relationships", stats.Relationships,
		"skipped", stats.Skipped)
	return stats, nil
}
