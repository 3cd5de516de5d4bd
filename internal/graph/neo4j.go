package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

var cypher = map[Query]string{
	TableToPrograms: `
MATCH (p:Program)-[:INCLUDES]->(c:COPYBOOK {type: 'TABLE'})
WITH c.name AS tableName, collect(p.program_name) AS programList, count(p) AS programCount
RETURN tableName, programList, programCount
ORDER BY programCount ASC`,

	ProgramStatistics: `
MATCH (p:Program)
WITH
sum(p.total_loc) AS Total_LOC,
sum(p.commented_loc) AS Commented_Lines,
sum(p.blank_loc) AS Blank_line,
sum(p.code_loc) AS Code_LOC,
count(p) AS Program_Count,
collect(p.copybooks) AS all_copybooks
UNWIND all_copybooks AS copybook_list
UNWIND copybook_list AS copybook
RETURN
Total_LOC,
Commented_Lines,
Blank_line,
Code_LOC,
Program_Count,
count(DISTINCT copybook) AS Copybook_Count`,

	JCLToProgram: `
MATCH (j:JCL)-[:JCL_CALLS]->(p:Program)
RETURN j.name as JCL_name, collect(p.program_name) as Main_program`,

	ProgramWise: `
MATCH (p:Program)
RETURN p.program_name as Program,
p.called_programs as Nested_Pgm,
p.subroutine_calls as Subroutine,
p.copybooks as COPYBOOK,
p.input_output_files as Input_Output_File`,

	JCLNodes: `
MATCH (j:JCL)-[:JCL_CALLS]->(p:Program) RETURN j, p`,

	ProgramPaths: fmt.Sprintf(`
MATCH path = (start:Program)-[:INCLUDES*]->(called:COPYBOOK)
RETURN nodes(path) LIMIT %d`, MaxPaths),
}

// Neo4jFactory serves sessions from a shared Neo4j driver.
type Neo4jFactory struct {
	driver neo4j.DriverWithContext
}

// OpenNeo4j creates a driver with basic auth. No connection is made until
// the first session or VerifyConnectivity.
func OpenNeo4j(uri, user, password string) (*Neo4jFactory, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver %s: %w", uri, err)
	}
	return &Neo4jFactory{driver: driver}, nil
}

func (f *Neo4jFactory) NewSession(ctx context.Context) (Session, error) {
	s := f.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	return &neo4jSession{session: s}, nil
}

func (f *Neo4jFactory) VerifyConnectivity(ctx context.Context) error {
	return f.driver.VerifyConnectivity(ctx)
}

func (f *Neo4jFactory) Close(ctx context.Context) error {
	return f.driver.Close(ctx)
}

type neo4jSession struct {
	session neo4j.SessionWithContext
}

func (s *neo4jSession) Run(ctx context.Context, q Query) ([]Record, error) {
	text, ok := cypher[q]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQuery, q)
	}
	result, err := s.session.Run(ctx, text, nil)
	if err != nil {
		return nil, err
	}
	rows, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := make(Record, len(row.Keys))
		for i, key := range row.Keys {
			rec[key] = fromDriver(row.Values[i])
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *neo4jSession) Close(ctx context.Context) error {
	return s.session.Close(ctx)
}

// fromDriver replaces driver node values with their property maps.
func fromDriver(v any) any {
	switch n := v.(type) {
	case dbtype.Node:
		return n.Props
	case *dbtype.Node:
		return n.Props
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = fromDriver(e)
		}
		return out
	}
	return v
}
