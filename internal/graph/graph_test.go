package graph_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/genframe/internal/graph"
	"github.com/agentic-research/genframe/internal/graph/graphtest"
)

func TestCollect(t *testing.T) {
	ctx := context.Background()

	t.Run("returns records and closes the session", func(t *testing.T) {
		f := graphtest.New(map[graph.Query][]graph.Record{
			graph.ProgramWise: {{"Program": "PGM1"}},
		})
		recs, err := graph.Collect(ctx, f, graph.ProgramWise)
		require.NoError(t, err)
		assert.Equal(t, []graph.Record{{"Program": "PGM1"}}, recs)
		assert.Equal(t, 1, f.Opened())
		assert.Equal(t, 1, f.Closed())
	})

	t.Run("closes the session when the query fails", func(t *testing.T) {
		boom := errors.New("boom")
		f := graphtest.New(nil)
		f.Errors[graph.JCLToProgram] = boom

		_, err := graph.Collect(ctx, f, graph.JCLToProgram)
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "jcl_to_program")
		assert.Equal(t, 1, f.Closed())
	})

	t.Run("connection failure", func(t *testing.T) {
		f := graphtest.New(nil)
		f.ConnectErr = errors.New("refused")
		_, err := graph.Collect(ctx, f, graph.JCLNodes)
		require.Error(t, err)
		assert.Equal(t, 0, f.Opened())
	})
}

func TestListJCLNodesFromPropertyMaps(t *testing.T) {
	f := graphtest.New(map[graph.Query][]graph.Record{
		graph.JCLNodes: {
			{"j": map[string]any{"name": "J1"}, "p": map[string]any{"program_name": "P1"}},
			{"j": map[string]any{"name": "J2"}, "p": map[string]any{}},
		},
	})
	nodes, err := graph.ListJCLNodes(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "P1", nodes[0].Program)
	assert.Nil(t, nodes[1].Program)
}

func TestQueryString(t *testing.T) {
	assert.Equal(t, "table_to_programs", graph.TableToPrograms.String())
	assert.Equal(t, "query(42)", graph.Query(42).String())
}
