package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/agentic-research/genframe/internal/flatten"
)

// ErrNoData is returned when a report has no rows to write.
var ErrNoData = errors.New("no data found to generate the report")

// ContentType is the MIME type of a written workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteWorkbook writes every non-empty sheet as a worksheet with a header
// row. Empty sheets are left out of the workbook.
func WriteWorkbook(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }() // safe to ignore

	written := 0
	for _, s := range r.Sheets {
		if s.Empty() {
			continue
		}
		if written == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.Name); err != nil {
				return fmt.Errorf("name sheet %s: %w", s.Name, err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return fmt.Errorf("add sheet %s: %w", s.Name, err)
		}
		if err := writeSheet(f, s); err != nil {
			return fmt.Errorf("write sheet %s: %w", s.Name, err)
		}
		written++
	}
	if written == 0 {
		return ErrNoData
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, s Sheet) error {
	header := make([]any, len(s.Columns))
	for i, c := range s.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(s.Name, "A1", &header); err != nil {
		return err
	}

	for i, row := range s.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := cells(row, s.Columns)
		if err := f.SetSheetRow(s.Name, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

// cells orders a row's values by columns. Empty strings become blank cells
// and composite values are written as JSON text.
func cells(row flatten.Row, columns []string) []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		v, ok := row.Get(c)
		if !ok {
			continue
		}
		switch x := v.(type) {
		case string:
			if x != "" {
				out[i] = x
			}
		case nil, bool, int64, float64:
			out[i] = x
		default:
			b, err := json.Marshal(x)
			if err != nil {
				out[i] = fmt.Sprint(x)
			} else {
				out[i] = string(b)
			}
		}
	}
	return out
}
