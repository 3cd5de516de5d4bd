// Package graph runs the fixed set of reads the service makes against the
// code-structure graph. Two backends implement SessionFactory: a Neo4j driver
// and an embedded SQLite graph built by `genframe build`.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

var (
	ErrUnknownQuery   = errors.New("unknown query")
	ErrUnknownBackend = errors.New("unknown graph backend")
)

// Query names one of the reads the service performs.
type Query int

const (
	// TableToPrograms groups programs by the TABLE copybooks they include.
	// Columns: tableName, programList, programCount.
	TableToPrograms Query = iota
	// ProgramStatistics is one row of totals over all programs.
	// Columns: Total_LOC, Commented_Lines, Blank_line, Code_LOC,
	// Program_Count, Copybook_Count.
	ProgramStatistics
	// JCLToProgram groups called programs by job-control file name.
	// Columns: JCL_name, Main_program.
	JCLToProgram
	// ProgramWise lists each program's associations.
	// Columns: Program, Nested_Pgm, Subroutine, COPYBOOK, Input_Output_File.
	ProgramWise
	// JCLNodes is every JCL_CALLS edge. Columns: j, p (property maps).
	JCLNodes
	// ProgramPaths is every INCLUDES path from a program to a copybook,
	// capped at MaxPaths. Column: nodes(path) (list of property maps).
	ProgramPaths
)

// MaxPaths caps the number of ProgramPaths records.
const MaxPaths = 1000

var queryNames = map[Query]string{
	TableToPrograms:   "table_to_programs",
	ProgramStatistics: "program_statistics",
	JCLToProgram:      "jcl_to_program",
	ProgramWise:       "program_wise",
	JCLNodes:          "jcl_nodes",
	ProgramPaths:      "program_paths",
}

func (q Query) String() string {
	if name, ok := queryNames[q]; ok {
		return name
	}
	return fmt.Sprintf("query(%d)", int(q))
}

// Record is one result row keyed by column name. Node values are property maps.
type Record map[string]any

// Session runs queries. A session is owned by one caller and must be closed.
type Session interface {
	Run(ctx context.Context, q Query) ([]Record, error)
	Close(ctx context.Context) error
}

// SessionFactory hands out sessions. It is safe for concurrent use.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

// Options selects and configures a backend.
type Options struct {
	Backend    string // "neo4j" or "sqlite"
	URI        string
	User       string
	Password   string
	SQLitePath string
}

// Open builds the SessionFactory named by opts.Backend.
func Open(opts Options) (SessionFactory, error) {
	switch opts.Backend {
	case "", "neo4j":
		f, err := OpenNeo4j(opts.URI, opts.User, opts.Password)
		if err != nil {
			return nil, err
		}
		return f, nil
	case "sqlite":
		f, err := OpenSQLite(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
}

// Collect runs q on a fresh session and closes it on every path.
func Collect(ctx context.Context, f SessionFactory, q Query) (records []Record, err error) {
	s, err := f.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if cerr := s.Close(ctx); cerr != nil {
			cerr = fmt.Errorf("close session: %w", cerr)
			if err == nil {
				err = cerr
			} else {
				err = multierror.Append(err, cerr)
			}
		}
	}()

	records, err = s.Run(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", q, err)
	}
	return records, nil
}
