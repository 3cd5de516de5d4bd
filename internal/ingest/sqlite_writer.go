package ingest

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
	_ "modernc.org/sqlite"

	"github.com/agentic-research/genframe/internal/graph"
)

// SQLiteWriter builds a graph database for graph.OpenSQLite. Nodes get dense
// uint32 ids in export node order and are inserted in batched transactions.
// Relationships are buffered by export id and resolved on Close, so endpoints
// never seen as nodes are numbered after every node.
type SQLiteWriter struct {
	db        *sql.DB
	tx        *sql.Tx
	stmtNode  *sql.Stmt
	batchSize int
	count     int
	mu        sync.Mutex

	ids     map[string]uint32
	nextID  uint32
	edges   []Relationship
	pending map[string]map[uint32]*roaring.Bitmap // rel -> src -> targets
	closed  bool
}

// NewSQLiteWriter creates a new writer and initializes the schema.
func NewSQLiteWriter(dbPath string) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Performance tuning for bulk insert
	if _, err := db.Exec("PRAGMA synchronous = OFF"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = MEMORY"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(graph.Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	w := &SQLiteWriter{
		db:        db,
		batchSize: 10000,
		ids:       make(map[string]uint32),
		pending:   make(map[string]map[uint32]*roaring.Bitmap),
	}
	if err := w.beginTx(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLiteWriter) beginTx() error {
	var err error
	w.tx, err = w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	w.stmtNode, err = w.tx.Prepare(`INSERT OR REPLACE INTO nodes (id, labels, props) VALUES (?, ?, ?)`)
	if err != nil {
		_ = w.tx.Rollback()
		return fmt.Errorf("prepare node insert: %w", err)
	}
	return nil
}

func (w *SQLiteWriter) commitTx() error {
	if w.stmtNode != nil {
		_ = w.stmtNode.Close()
	}
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (w *SQLiteWriter) intern(exportID string) uint32 {
	id, ok := w.ids[exportID]
	if !ok {
		id = w.nextID
		w.nextID++
		w.ids[exportID] = id
	}
	return id
}

// AddNode writes a node. A later node with the same export id replaces it.
func (w *SQLiteWriter) AddNode(n Node) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	labels := n.Labels
	if labels == nil {
		labels = []string{}
	}
	labelJSON, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("encode labels: %w", err)
	}
	props := n.Props
	if props == nil {
		props = map[string]any{}
	}
	propJSON, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("encode props: %w", err)
	}

	if _, err := w.stmtNode.Exec(w.intern(n.ID), string(labelJSON), string(propJSON)); err != nil {
		return fmt.Errorf("insert node: %w", err)
	}

	w.count++
	if w.count >= w.batchSize {
		if err := w.commitTx(); err != nil {
			return err
		}
		if err := w.beginTx(); err != nil {
			return err
		}
		w.count = 0
	}
	return nil
}

// AddRelationship buffers an edge. Endpoints are resolved and no SQL is
// issued until Close.
func (w *SQLiteWriter) AddRelationship(r Relationship) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.edges = append(w.edges, r)
	return nil
}

// resolveEdges interns buffered edge endpoints and folds them into the
// per-source bitmaps.
func (w *SQLiteWriter) resolveEdges() {
	for _, r := range w.edges {
		bySrc, ok := w.pending[r.Type]
		if !ok {
			bySrc = make(map[uint32]*roaring.Bitmap)
			w.pending[r.Type] = bySrc
		}
		src := w.intern(r.Start)
		bm, ok := bySrc[src]
		if !ok {
			bm = roaring.New()
			bySrc[src] = bm
		}
		bm.Add(w.intern(r.End))
	}
	w.edges = nil
}

func (w *SQLiteWriter) flushRefs() error {
	stmt, err := w.tx.Prepare("INSERT OR REPLACE INTO node_refs (rel, src, bitmap) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare node_refs insert: %w", err)
	}
	defer func() { _ = stmt.Close() }() // safe to ignore

	rels := make([]string, 0, len(w.pending))
	for rel := range w.pending {
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	var buf bytes.Buffer
	for _, rel := range rels {
		for src, bm := range w.pending[rel] {
			bm.RunOptimize()
			buf.Reset()
			if _, err := bm.WriteTo(&buf); err != nil {
				return fmt.Errorf("serialize bitmap for %s/%d: %w", rel, src, err)
			}
			if _, err := stmt.Exec(rel, src, buf.Bytes()); err != nil {
				return fmt.Errorf("insert ref %s/%d: %w", rel, src, err)
			}
		}
	}
	return nil
}

// Close flushes relationships, commits and closes the database. Calling it
// again is a no-op.
func (w *SQLiteWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	w.resolveEdges()
	if err := w.flushRefs(); err != nil {
		_ = w.tx.Rollback()
		_ = w.db.Close()
		return err
	}
	if err := w.commitTx(); err != nil {
		_ = w.db.Close()
		return err
	}
	return w.db.Close()
}

// Interface compliance
var _ Target = (*SQLiteWriter)(nil)
