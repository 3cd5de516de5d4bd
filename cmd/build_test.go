package cmd

import (
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const buildExport = `{"type":"node","id":"1","labels":["Program"],"properties":{"program_name":"PGM1"}}
{"type":"node","id":"2","labels":["JCL"],"properties":{"name":"JOB1"}}
{"type":"relationship","label":"JCL_CALLS","start":{"id":"2"},"end":{"id":"1"}}
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildGraph(t *testing.T) {
	t.Run("replaces output on success", func(t *testing.T) {
		dir := t.TempDir()
		source := filepath.Join(dir, "export.json")
		require.NoError(t, os.WriteFile(source, []byte(buildExport), 0o644))
		output := filepath.Join(dir, "graph.db")
		require.NoError(t, os.WriteFile(output, []byte("stale"), 0o644))

		stats, err := buildGraph(source, output, quietLogger())
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Nodes)
		assert.Equal(t, 1, stats.Relationships)

		db, err := sql.Open("sqlite", output)
		require.NoError(t, err)
		defer func() { _ = db.Close() }()
		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM nodes").Scan(&n))
		assert.Equal(t, 2, n)

		assert.Equal(t, []string{"export.json", "graph.db"}, dirNames(t, dir))
	})

	t.Run("failed build keeps existing output", func(t *testing.T) {
		dir := t.TempDir()
		output := filepath.Join(dir, "graph.db")
		require.NoError(t, os.WriteFile(output, []byte("previous build"), 0o644))

		_, err := buildGraph(filepath.Join(dir, "missing.json"), output, quietLogger())
		require.Error(t, err)

		data, err := os.ReadFile(output)
		require.NoError(t, err)
		assert.Equal(t, "previous build", string(data))
		assert.Equal(t, []string{"graph.db"}, dirNames(t, dir), "temp database removed")
	})
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
