package api

// JCLNode pairs a job-control file with one program it calls.
type JCLNode struct {
	// Program is the called program's program_name.
	Program any `json:"program"`
	// JCLNode is the job-control file's name.
	JCLNode any `json:"jclnode"`
}

// PathNode is one node on a program include path. Fields are copied from the
// node's properties and are omitted when the node does not carry them.
type PathNode struct {
	ProgramName     any `json:"program_name,omitempty"`
	Name            any `json:"name,omitempty"`
	Type            any `json:"type,omitempty"`
	CalledPrograms  any `json:"called_programs,omitempty"`
	SubroutineCalls any `json:"subroutine_calls,omitempty"`
}

// ProgramPath is an ordered include path starting at a program.
type ProgramPath []PathNode

// Message is a plain informational response body.
type Message struct {
	Message string `json:"message"`
}

// UploadResult is returned after an archive has been extracted.
type UploadResult struct {
	Message    string `json:"message"`
	ExtractDir string `json:"extractDir"`
}

// Error is the body of every failed request.
type Error struct {
	// Code is the machine-readable category: validation, not_found,
	// upstream, internal or payload_too_large.
	Code    string `json:"code"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Health is the liveness probe body.
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
