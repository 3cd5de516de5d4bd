package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Stager writes uploads to uniquely named files under Dir.
type Stager struct {
	Dir string
}

// Stage copies r to a new file and returns its path. The file is removed if
// the copy fails.
func (s Stager) Stage(r io.Reader) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	p := filepath.Join(s.Dir, uuid.NewString())
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(p) // best-effort cleanup
		return "", fmt.Errorf("stage upload: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(p) // best-effort cleanup
		return "", fmt.Errorf("close staged file: %w", err)
	}
	return p, nil
}
