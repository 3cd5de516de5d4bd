package report

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/genframe/internal/flatten"
	"github.com/agentic-research/genframe/internal/graph"
	"github.com/agentic-research/genframe/internal/normalize"
)

// ArtifactSource supplies the pre-computed artifact rows.
type ArtifactSource interface {
	Load(ctx context.Context) ([]flatten.Row, error)
}

// Assembler runs the report queries and flattens their results.
type Assembler struct {
	Graph     graph.SessionFactory
	Artifacts ArtifactSource // optional
	Logger    *slog.Logger
}

func (a *Assembler) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// Assemble runs the four grouped queries and the artifact load concurrently.
// A query failure fails the report; an artifact failure only empties the
// artifact sheet.
func (a *Assembler) Assemble(ctx context.Context) (*Report, error) {
	var (
		tables, stats, jcls, programs []graph.Record
		artifacts                     []flatten.Row
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, job := range []struct {
		q   graph.Query
		dst *[]graph.Record
	}{
		{graph.TableToPrograms, &tables},
		{graph.ProgramStatistics, &stats},
		{graph.JCLToProgram, &jcls},
		{graph.ProgramWise, &programs},
	} {
		g.Go(func() error {
			recs, err := graph.Collect(gctx, a.Graph, job.q)
			if err != nil {
				return err
			}
			*job.dst = recs
			return nil
		})
	}
	if a.Artifacts != nil {
		g.Go(func() error {
			rows, err := a.Artifacts.Load(gctx)
			if err != nil {
				a.logger().Warn("artifact source unavailable, sheet left empty", "err", err)
				return nil
			}
			artifacts = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("assemble report: %w", err)
	}

	r := &Report{Sheets: []Sheet{
		{Name: SheetTableToPrograms, Columns: TableToProgramsColumns, Rows: TableRows(tables)},
		{Name: SheetProgramStats, Columns: ProgramStatsColumns, Rows: StatRows(stats)},
		{Name: SheetJCLToProgram, Columns: JCLToProgramColumns, Rows: JCLRows(jcls)},
		{Name: SheetProgramAnalysis, Columns: ProgramColumns, Rows: ProgramRows(programs)},
		{Name: SheetArtifactAnalysis, Columns: Columns(artifacts), Rows: orEmpty(artifacts)},
	}}
	for _, s := range r.Sheets {
		if s.Empty() {
			a.logger().Info("no data for sheet", "sheet", s.Name)
		}
	}
	a.logger().Info("report assembled", "outcome", r.Outcome().String())
	return r, nil
}

// TableRows flattens table→programs records. The program count appears on
// each table's first row only.
func TableRows(records []graph.Record) []flatten.Row {
	groups := make([]flatten.Group, 0, len(records))
	for _, rec := range records {
		groups = append(groups, flatten.Group{
			Key: normalize.String(rec["tableName"]),
			Lists: [][]any{
				normalize.List(rec["programList"]),
				{normalize.Scalar(rec["programCount"])},
			},
		})
	}
	return flatten.Flatten(groups, TableToProgramsColumns[0], TableToProgramsColumns[1:])
}

// StatRows maps each statistics record to one row of unwrapped totals.
func StatRows(records []graph.Record) []flatten.Row {
	fields := []string{"Total_LOC", "Commented_Lines", "Blank_line", "Code_LOC", "Program_Count", "Copybook_Count"}
	groups := make([]flatten.Group, 0, len(records))
	for _, rec := range records {
		lists := make([][]any, len(fields))
		for i, f := range fields {
			lists[i] = []any{normalize.Scalar(rec[f])}
		}
		groups = append(groups, flatten.Group{Lists: lists})
	}
	return flatten.Flatten(groups, "", ProgramStatsColumns)
}

// JCLRows flattens job→program records.
func JCLRows(records []graph.Record) []flatten.Row {
	groups := make([]flatten.Group, 0, len(records))
	for _, rec := range records {
		groups = append(groups, flatten.Group{
			Key:   normalize.String(rec["JCL_name"]),
			Lists: [][]any{normalize.List(rec["Main_program"])},
		})
	}
	return flatten.Flatten(groups, JCLToProgramColumns[0], JCLToProgramColumns[1:])
}

// ProgramRows flattens program-wise records, zipping called programs,
// subroutines, copybooks and files.
func ProgramRows(records []graph.Record) []flatten.Row {
	groups := make([]flatten.Group, 0, len(records))
	for _, rec := range records {
		groups = append(groups, flatten.Group{
			Key: normalize.String(rec["Program"]),
			Lists: [][]any{
				normalize.List(rec["Nested_Pgm"]),
				normalize.List(rec["Subroutine"]),
				normalize.List(rec["COPYBOOK"]),
				normalize.List(rec["Input_Output_File"]),
			},
		})
	}
	return flatten.Flatten(groups, ProgramColumns[0], ProgramColumns[1:])
}

// Columns is the union of row keys in first-seen order.
func Columns(rows []flatten.Row) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, row := range rows {
		for pair := row.Oldest(); pair != nil; pair = pair.Next() {
			if !seen[pair.Key] {
				seen[pair.Key] = true
				cols = append(cols, pair.Key)
			}
		}
	}
	return cols
}

func orEmpty(rows []flatten.Row) []flatten.Row {
	if rows == nil {
		return []flatten.Row{}
	}
	return rows
}
