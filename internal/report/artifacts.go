package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/agentic-research/genframe/internal/flatten"
	"github.com/agentic-research/genframe/internal/normalize"
)

var ErrArtifactsNotArray = errors.New("artifact file is not a JSON array of objects")

// FileArtifacts reads artifact rows from a JSON file holding an array of
// objects. Key order within each object is kept.
type FileArtifacts struct {
	Path string
}

func (f FileArtifacts) Load(ctx context.Context) ([]flatten.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read artifacts: %w", err)
	}
	return ParseArtifacts(data)
}

// ParseArtifacts decodes a JSON array of objects into rows. Numbers are
// normalized; nested values are kept as decoded.
func ParseArtifacts(data []byte) ([]flatten.Row, error) {
	var items []*orderedmap.OrderedMap[string, any]
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactsNotArray, err)
	}
	rows := make([]flatten.Row, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		row := flatten.NewRow()
		for pair := item.Oldest(); pair != nil; pair = pair.Next() {
			row.Set(pair.Key, normalize.Scalar(pair.Value))
		}
		rows = append(rows, row)
	}
	return rows, nil
}
