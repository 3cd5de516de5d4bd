package graph

import (
	"context"

	"github.com/agentic-research/genframe/api"
)

// ListJCLNodes returns one entry per JCL_CALLS edge.
func ListJCLNodes(ctx context.Context, f SessionFactory) ([]api.JCLNode, error) {
	records, err := Collect(ctx, f, JCLNodes)
	if err != nil {
		return nil, err
	}
	out := make([]api.JCLNode, 0, len(records))
	for _, r := range records {
		out = append(out, api.JCLNode{
			Program: props(r["p"])["program_name"],
			JCLNode: props(r["j"])["name"],
		})
	}
	return out, nil
}

// ListProgramPaths returns the include paths starting at programs, at most
// MaxPaths of them.
func ListProgramPaths(ctx context.Context, f SessionFactory) ([]api.ProgramPath, error) {
	records, err := Collect(ctx, f, ProgramPaths)
	if err != nil {
		return nil, err
	}
	out := make([]api.ProgramPath, 0, len(records))
	for _, r := range records {
		nodes, _ := r["nodes(path)"].([]any)
		path := make(api.ProgramPath, 0, len(nodes))
		for _, n := range nodes {
			p := props(n)
			path = append(path, api.PathNode{
				ProgramName:     p["program_name"],
				Name:            p["name"],
				Type:            p["type"],
				CalledPrograms:  p["called_programs"],
				SubroutineCalls: p["subroutine_calls"],
			})
		}
		out = append(out, path)
		if len(out) == MaxPaths {
			break
		}
	}
	return out, nil
}

func props(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
