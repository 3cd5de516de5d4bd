package ingest

import (
	"fmt"

	"github.com/ohler55/ojg/jp"

	"github.com/agentic-research/genframe/internal/normalize"
)

// exportPaths are the JSONPath selectors for the fields of an APOC export
// entry. Node entries carry id, labels and properties; relationship entries
// carry label, start.id and end.id.
type exportPaths struct {
	kind   jp.Expr
	id     jp.Expr
	labels jp.Expr
	props  jp.Expr
	rel    jp.Expr
	start  jp.Expr
	end    jp.Expr
}

func compileExportPaths() (*exportPaths, error) {
	compile := func(s string) (jp.Expr, error) {
		x, err := jp.ParseString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid jsonpath '%s': %w", s, err)
		}
		return x, nil
	}

	var (
		p   exportPaths
		err error
	)
	for _, f := range []struct {
		dst *jp.Expr
		src string
	}{
		{&p.kind, "$.type"},
		{&p.id, "$.id"},
		{&p.labels, "$.labels"},
		{&p.props, "$.properties"},
		{&p.rel, "$.label"},
		{&p.start, "$.start.id"},
		{&p.end, "$.end.id"},
	} {
		if *f.dst, err = compile(f.src); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// decode classifies one export entry. ok is false for entries that are
// neither nodes nor relationships.
func (p *exportPaths) decode(entry any) (n *Node, r *Relationship, ok bool) {
	switch p.kind.First(entry) {
	case "node":
		node := &Node{
			ID:    normalize.String(p.id.First(entry)),
			Props: map[string]any{},
		}
		for _, l := range normalize.List(p.labels.First(entry)) {
			if s, isString := l.(string); isString {
				node.Labels = append(node.Labels, s)
			}
		}
		if props, isMap := p.props.First(entry).(map[string]any); isMap {
			node.Props = props
		}
		return node, nil, node.ID != ""

	case "relationship":
		rel := &Relationship{
			Type:  normalize.String(p.rel.First(entry)),
			Start: normalize.String(p.start.First(entry)),
			End:   normalize.String(p.end.First(entry)),
		}
		return nil, rel, rel.Type != "" && rel.Start != "" && rel.End != ""
	}
	return nil, nil, false
}
