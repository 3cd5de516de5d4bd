// Package flatten denormalizes grouped graph results into spreadsheet rows.
//
// A group is one parent key with any number of parallel child lists. Each
// group expands to max(1, longest list) rows; lists are zipped by index and
// the key is written on the first row of a run only.
package flatten

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/agentic-research/genframe/internal/normalize"
)

// Row is one output row. Column order follows insertion order.
type Row = *orderedmap.OrderedMap[string, any]

// Group is one parent key with its child lists, in column order.
type Group struct {
	Key   string
	Lists [][]any
}

// NewRow returns an empty row.
func NewRow() Row {
	return orderedmap.New[string, any]()
}

// Flatten expands groups into rows. keyColumn names the column that carries
// the group key and may be empty for ungrouped data; columns names the child
// lists in order. Groups with fewer lists than columns get "" for the rest.
//
// A key is suppressed when it equals the key of the previous group, so a key
// that reappears after a different key is written again. Groups with an empty
// key do not reset the previous key.
func Flatten(groups []Group, keyColumn string, columns []string) []Row {
	rows := make([]Row, 0, len(groups))

	var previous string
	havePrevious := false

	for _, g := range groups {
		n := 1
		for _, l := range g.Lists {
			if len(l) > n {
				n = len(l)
			}
		}

		showKey := !havePrevious || g.Key != previous

		for i := 0; i < n; i++ {
			row := NewRow()
			if keyColumn != "" {
				if i == 0 && showKey {
					row.Set(keyColumn, g.Key)
				} else {
					row.Set(keyColumn, "")
				}
			}
			for c, name := range columns {
				row.Set(name, cell(g.Lists, c, i))
			}
			rows = append(rows, row)
		}

		if g.Key != "" {
			previous = g.Key
			havePrevious = true
		}
	}

	return rows
}

func cell(lists [][]any, c, i int) any {
	if c >= len(lists) || i >= len(lists[c]) {
		return ""
	}
	return normalize.Scalar(lists[c][i])
}

// Values returns the row's values in column order.
func Values(row Row) []any {
	out := make([]any, 0, row.Len())
	for pair := row.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Map copies a row into a plain map, mostly for tests and JSON output.
func Map(row Row) map[string]any {
	out := make(map[string]any, row.Len())
	for pair := row.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = pair.Value
	}
	return out
}
