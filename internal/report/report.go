// Package report assembles the five-sheet code analysis report from graph
// query results and a pre-computed artifact file.
package report

import (
	"github.com/agentic-research/genframe/internal/flatten"
)

// Sheet names in report order.
const (
	SheetTableToPrograms  = "Table_to_Programs"
	SheetProgramStats     = "Program_Statistics"
	SheetJCLToProgram     = "JCL_to_program"
	SheetProgramAnalysis  = "Program_Analysis"
	SheetArtifactAnalysis = "All Artifacts Analysis"
)

// Column headers of the flattened sheets.
var (
	TableToProgramsColumns = []string{"Table Name", "Connected Program", "No. of Connected Program"}
	ProgramStatsColumns    = []string{"Total LOC", "Commented Lines", "Blank line", "Code LOC", "Program Count", "Copybook Count"}
	JCLToProgramColumns    = []string{"JCL name", "Main Program"}
	ProgramColumns         = []string{"Program Name", "Called Program", "Subroutines", "Copybooks", "Input Output File"}
)

// Sheet is one named row sequence. Rows may be empty.
type Sheet struct {
	Name    string
	Columns []string
	Rows    []flatten.Row
}

// Empty reports whether the sheet has no rows.
func (s Sheet) Empty() bool { return len(s.Rows) == 0 }

// Report always holds the five sheets in order, empty ones included.
type Report struct {
	Sheets []Sheet
}

// Sheet returns the sheet called name.
func (r *Report) Sheet(name string) (Sheet, bool) {
	for _, s := range r.Sheets {
		if s.Name == name {
			return s, true
		}
	}
	return Sheet{}, false
}

// Outcome classifies how much of a report has data.
type Outcome int

const (
	NoData Outcome = iota
	Partial
	Complete
)

func (o Outcome) String() string {
	switch o {
	case Complete:
		return "complete"
	case Partial:
		return "partial"
	}
	return "no_data"
}

// Outcome is NoData when every sheet is empty and Complete when none is.
func (r *Report) Outcome() Outcome {
	filled := 0
	for _, s := range r.Sheets {
		if !s.Empty() {
			filled++
		}
	}
	switch {
	case filled == 0:
		return NoData
	case filled == len(r.Sheets):
		return Complete
	}
	return Partial
}
