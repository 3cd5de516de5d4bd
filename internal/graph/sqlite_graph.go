package graph

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring"
	"github.com/ohler55/ojg/oj"
	_ "modernc.org/sqlite"

	"github.com/agentic-research/genframe/internal/normalize"
)

// Relationship types read by the SQLite backend.
const (
	RelIncludes = "INCLUDES"
	RelJCLCalls = "JCL_CALLS"
)

// Node labels read by the SQLite backend.
const (
	LabelProgram  = "Program"
	LabelCopybook = "COPYBOOK"
	LabelJCL      = "JCL"
)

// Schema is the layout of a graph database written by ingest.SQLiteWriter.
// Outgoing edges of one relationship type are stored per source node as a
// serialized roaring bitmap of target ids.
const Schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id INTEGER PRIMARY KEY,
	labels JSON NOT NULL,
	props JSON NOT NULL
);

CREATE TABLE IF NOT EXISTS node_refs (
	rel TEXT NOT NULL,
	src INTEGER NOT NULL,
	bitmap BLOB NOT NULL,
	PRIMARY KEY (rel, src)
) WITHOUT ROWID;
`

// SQLiteFactory serves read-only sessions over an embedded graph database.
type SQLiteFactory struct {
	db     *sql.DB
	dbPath string
}

// OpenSQLite opens dbPath read-only.
func OpenSQLite(dbPath string) (*SQLiteFactory, error) {
	db, err := sql.Open("sqlite", dbPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(4)
	return &SQLiteFactory{db: db, dbPath: dbPath}, nil
}

func (f *SQLiteFactory) NewSession(ctx context.Context) (Session, error) {
	conn, err := f.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &sqliteSession{conn: conn}, nil
}

// VerifyConnectivity checks that the file opens and carries the graph schema.
func (f *SQLiteFactory) VerifyConnectivity(ctx context.Context) error {
	var n int
	if err := f.db.QueryRowContext(ctx, "SELECT count(*) FROM nodes").Scan(&n); err != nil {
		return fmt.Errorf("check graph %s: %w", f.dbPath, err)
	}
	return nil
}

func (f *SQLiteFactory) Close(context.Context) error {
	return f.db.Close()
}

type sqliteSession struct {
	conn *sql.Conn
}

func (s *sqliteSession) Close(context.Context) error {
	return s.conn.Close()
}

// node is one graph node as loaded from the nodes table.
type node struct {
	id     uint32
	labels []string
	props  map[string]any
}

func (n *node) is(label string) bool {
	for _, l := range n.labels {
		if l == label {
			return true
		}
	}
	return false
}

func (n *node) prop(key string) any {
	return n.props[key]
}

// snapshot is the node set in id order plus one relationship's adjacency.
type snapshot struct {
	order []*node
	byID  map[uint32]*node
	out   map[uint32]*roaring.Bitmap
}

func (s *snapshot) withLabel(label string) []*node {
	var out []*node
	for _, n := range s.order {
		if n.is(label) {
			out = append(out, n)
		}
	}
	return out
}

// targets returns the outgoing neighbours of n in ascending id order.
func (s *snapshot) targets(n *node) []*node {
	bm, ok := s.out[n.id]
	if !ok {
		return nil
	}
	out := make([]*node, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		if t, ok := s.byID[it.Next()]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (s *sqliteSession) load(ctx context.Context, rel string) (*snapshot, error) {
	snap := &snapshot{
		byID: make(map[uint32]*node),
		out:  make(map[uint32]*roaring.Bitmap),
	}

	rows, err := s.conn.QueryContext(ctx, "SELECT id, labels, props FROM nodes ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	for rows.Next() {
		var (
			id            uint32
			labels, props string
		)
		if err := rows.Scan(&id, &labels, &props); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n, err := decodeNode(id, labels, props)
		if err != nil {
			return nil, err
		}
		snap.order = append(snap.order, n)
		snap.byID[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}

	if rel == "" {
		return snap, nil
	}

	refRows, err := s.conn.QueryContext(ctx, "SELECT src, bitmap FROM node_refs WHERE rel = ?", rel)
	if err != nil {
		return nil, fmt.Errorf("query %s refs: %w", rel, err)
	}
	defer func() { _ = refRows.Close() }() // safe to ignore

	for refRows.Next() {
		var (
			src  uint32
			blob []byte
		)
		if err := refRows.Scan(&src, &blob); err != nil {
			return nil, fmt.Errorf("scan ref: %w", err)
		}
		bm := roaring.New()
		if err := bm.UnmarshalBinary(blob); err != nil {
			return nil, fmt.Errorf("unmarshal bitmap for node %d: %w", src, err)
		}
		snap.out[src] = bm
	}
	if err := refRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refs: %w", err)
	}
	return snap, nil
}

func decodeNode(id uint32, labels, props string) (*node, error) {
	n := &node{id: id, props: map[string]any{}}

	rawLabels, err := oj.ParseString(labels)
	if err != nil {
		return nil, fmt.Errorf("decode labels of node %d: %w", id, err)
	}
	if list, ok := rawLabels.([]any); ok {
		for _, l := range list {
			if s, ok := l.(string); ok {
				n.labels = append(n.labels, s)
			}
		}
	}

	rawProps, err := oj.ParseString(props)
	if err != nil {
		return nil, fmt.Errorf("decode props of node %d: %w", id, err)
	}
	if m, ok := rawProps.(map[string]any); ok {
		n.props = m
	}
	return n, nil
}

func (s *sqliteSession) Run(ctx context.Context, q Query) ([]Record, error) {
	switch q {
	case TableToPrograms:
		return s.tableToPrograms(ctx)
	case ProgramStatistics:
		return s.programStatistics(ctx)
	case JCLToProgram:
		return s.jclToProgram(ctx)
	case ProgramWise:
		return s.programWise(ctx)
	case JCLNodes:
		return s.jclNodes(ctx)
	case ProgramPaths:
		return s.programPaths(ctx)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownQuery, q)
}

type tableGroup struct {
	name     any
	programs []any
	count    int64
}

// tableToPrograms groups by table name. Null program names are counted but
// not listed. Groups are ordered by count, then by name.
func (s *sqliteSession) tableToPrograms(ctx context.Context) ([]Record, error) {
	snap, err := s.load(ctx, RelIncludes)
	if err != nil {
		return nil, err
	}

	var groups []*tableGroup
	byName := make(map[string]*tableGroup)

	for _, p := range snap.withLabel(LabelProgram) {
		for _, c := range snap.targets(p) {
			if !c.is(LabelCopybook) || c.prop("type") != "TABLE" {
				continue
			}
			key := normalize.String(c.prop("name"))
			g, ok := byName[key]
			if !ok {
				g = &tableGroup{name: c.prop("name"), programs: []any{}}
				byName[key] = g
				groups = append(groups, g)
			}
			g.count++
			if name := p.prop("program_name"); name != nil {
				g.programs = append(g.programs, name)
			}
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].count != groups[j].count {
			return groups[i].count < groups[j].count
		}
		return normalize.String(groups[i].name) < normalize.String(groups[j].name)
	})

	records := make([]Record, 0, len(groups))
	for _, g := range groups {
		records = append(records, Record{
			"tableName":    g.name,
			"programList":  g.programs,
			"programCount": g.count,
		})
	}
	return records, nil
}

// programStatistics yields no row when there are no programs or no program
// lists any copybook.
func (s *sqliteSession) programStatistics(ctx context.Context) ([]Record, error) {
	snap, err := s.load(ctx, "")
	if err != nil {
		return nil, err
	}
	programs := snap.withLabel(LabelProgram)

	copybooks := make(map[string]struct{})
	for _, p := range programs {
		for _, c := range normalize.List(p.prop("copybooks")) {
			copybooks[normalize.String(c)] = struct{}{}
		}
	}
	if len(copybooks) == 0 {
		return nil, nil
	}

	return []Record{{
		"Total_LOC":       sum(programs, "total_loc"),
		"Commented_Lines": sum(programs, "commented_loc"),
		"Blank_line":      sum(programs, "blank_loc"),
		"Code_LOC":        sum(programs, "code_loc"),
		"Program_Count":   int64(len(programs)),
		"Copybook_Count":  int64(len(copybooks)),
	}}, nil
}

// sum adds a numeric property over nodes, skipping nulls. The result stays
// an integer unless a non-integral value was seen.
func sum(nodes []*node, key string) any {
	var (
		ints    int64
		floats  float64
		isFloat bool
	)
	for _, n := range nodes {
		v, ok := normalize.Parse(n.prop(key))
		if !ok {
			continue
		}
		switch x := v.(type) {
		case normalize.Float:
			floats += float64(x)
			isFloat = true
		case normalize.Absent:
		default:
			ints += normalize.Int64(x)
		}
	}
	if isFloat {
		return floats + float64(ints)
	}
	return ints
}

func (s *sqliteSession) jclToProgram(ctx context.Context) ([]Record, error) {
	snap, err := s.load(ctx, RelJCLCalls)
	if err != nil {
		return nil, err
	}

	type jclGroup struct {
		name     any
		programs []any
	}
	var groups []*jclGroup
	byName := make(map[string]*jclGroup)

	for _, j := range snap.withLabel(LabelJCL) {
		for _, p := range snap.targets(j) {
			if !p.is(LabelProgram) {
				continue
			}
			key := normalize.String(j.prop("name"))
			g, ok := byName[key]
			if !ok {
				g = &jclGroup{name: j.prop("name"), programs: []any{}}
				byName[key] = g
				groups = append(groups, g)
			}
			if name := p.prop("program_name"); name != nil {
				g.programs = append(g.programs, name)
			}
		}
	}

	records := make([]Record, 0, len(groups))
	for _, g := range groups {
		records = append(records, Record{"JCL_name": g.name, "Main_program": g.programs})
	}
	return records, nil
}

func (s *sqliteSession) programWise(ctx context.Context) ([]Record, error) {
	snap, err := s.load(ctx, "")
	if err != nil {
		return nil, err
	}
	programs := snap.withLabel(LabelProgram)
	records := make([]Record, 0, len(programs))
	for _, p := range programs {
		records = append(records, Record{
			"Program":           p.prop("program_name"),
			"Nested_Pgm":        p.prop("called_programs"),
			"Subroutine":        p.prop("subroutine_calls"),
			"COPYBOOK":          p.prop("copybooks"),
			"Input_Output_File": p.prop("input_output_files"),
		})
	}
	return records, nil
}

func (s *sqliteSession) jclNodes(ctx context.Context) ([]Record, error) {
	snap, err := s.load(ctx, RelJCLCalls)
	if err != nil {
		return nil, err
	}
	var records []Record
	for _, j := range snap.withLabel(LabelJCL) {
		for _, p := range snap.targets(j) {
			if p.is(LabelProgram) {
				records = append(records, Record{"j": j.props, "p": p.props})
			}
		}
	}
	return records, nil
}

// programPaths walks INCLUDES edges depth-first from every program and emits
// each path that ends on a copybook. A node is never revisited within one
// path, so cycles terminate.
func (s *sqliteSession) programPaths(ctx context.Context) ([]Record, error) {
	snap, err := s.load(ctx, RelIncludes)
	if err != nil {
		return nil, err
	}

	var records []Record
	onPath := make(map[uint32]bool)
	var path []*node

	var walk func(n *node) bool
	walk = func(n *node) bool {
		path = append(path, n)
		onPath[n.id] = true
		defer func() {
			path = path[:len(path)-1]
			delete(onPath, n.id)
		}()

		if len(path) > 1 && n.is(LabelCopybook) {
			nodes := make([]any, len(path))
			for i, p := range path {
				nodes[i] = p.props
			}
			records = append(records, Record{"nodes(path)": nodes})
			if len(records) >= MaxPaths {
				return false
			}
		}
		for _, t := range snap.targets(n) {
			if onPath[t.id] {
				continue
			}
			if !walk(t) {
				return false
			}
		}
		return true
	}

	for _, p := range snap.withLabel(LabelProgram) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !walk(p) {
			break
		}
	}
	return records, nil
}
