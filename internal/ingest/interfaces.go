package ingest

// Node is one graph node from an export.
type Node struct {
	ID     string
	Labels []string
	Props  map[string]any
}

// Relationship is one directed edge from an export. Start and End are the
// export ids of the endpoint nodes.
type Relationship struct {
	Type  string
	Start string
	End   string
}

// Target receives the entries of an export. Relationships may arrive before
// the nodes they connect.
type Target interface {
	AddNode(n Node) error
	AddRelationship(r Relationship) error
	Close() error
}
