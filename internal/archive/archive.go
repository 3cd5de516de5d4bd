// Package archive extracts uploaded zip archives into per-archive
// directories under a fixed root.
package archive

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

var (
	ErrInvalidName = errors.New("archive name does not yield a usable directory name")
	ErrUnsafeEntry = errors.New("archive entry escapes the extraction directory")
	ErrTooLarge    = errors.New("archive expands beyond the size limit")
)

// Error reports which step of an ingestion failed.
type Error struct {
	Op  string // "mkdir", "open", "extract"
	Err error
}

func (e *Error) Error() string { return "archive " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// SafeDirName derives an extraction directory name from an untrusted upload
// filename: the last path segment (either separator) without a trailing
// ".zip".
func SafeDirName(name string) (string, error) {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	if len(base) >= 4 && strings.EqualFold(base[len(base)-4:], ".zip") {
		base = base[:len(base)-4]
	}
	switch base {
	case "", ".", "..", "/":
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}

// Ingestor extracts archives under Root.
type Ingestor struct {
	Root string
	// MaxBytes caps the total decompressed size of one archive. Zero
	// disables the cap.
	MaxBytes int64
	Logger   *slog.Logger
}

func (in *Ingestor) logger() *slog.Logger {
	if in.Logger != nil {
		return in.Logger
	}
	return slog.Default()
}

// Ingest extracts the zip at tmpPath into Root/<SafeDirName(originalName)>,
// overwriting existing files, and returns the absolute directory. tmpPath is
// removed on every return path.
func (in *Ingestor) Ingest(tmpPath, originalName string) (dir string, err error) {
	defer func() {
		if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			in.logger().Warn("remove staged upload", "path", tmpPath, "err", rmErr)
		}
	}()

	name, err := SafeDirName(originalName)
	if err != nil {
		return "", err
	}
	root, err := filepath.Abs(in.Root)
	if err != nil {
		return "", &Error{Op: "mkdir", Err: err}
	}
	dir = filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &Error{Op: "mkdir", Err: err}
	}

	r, err := zip.OpenReader(tmpPath)
	if err != nil {
		return "", &Error{Op: "open", Err: err}
	}
	defer func() { _ = r.Close() }() // safe to ignore

	var budget *int64
	if in.MaxBytes > 0 {
		remaining := in.MaxBytes
		budget = &remaining
	}
	for _, f := range r.File {
		if err := extractEntry(f, dir, budget); err != nil {
			return "", &Error{Op: "extract", Err: fmt.Errorf("%s: %w", f.Name, err)}
		}
	}

	in.logger().Info("archive extracted", "name", originalName, "dir", dir, "entries", len(r.File))
	return dir, nil
}

// entryPath resolves an entry name inside dir, rejecting absolute names and
// names that climb out of it.
func entryPath(dir, name string) (string, error) {
	rel := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if path.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", ErrUnsafeEntry
	}
	target := filepath.Join(dir, filepath.FromSlash(rel))
	if r, err := filepath.Rel(dir, target); err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", ErrUnsafeEntry
	}
	return target, nil
}

// extractEntry writes one entry. A non-nil budget is the number of bytes the
// archive may still expand to and is decremented by what was written.
func extractEntry(f *zip.File, dir string, budget *int64) error {
	target, err := entryPath(dir, f.Name)
	if err != nil {
		return err
	}

	mode := f.Mode()
	switch {
	case mode&os.ModeSymlink != 0:
		return nil
	case f.FileInfo().IsDir():
		return os.MkdirAll(target, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	src, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }() // safe to ignore

	perm := mode.Perm()
	if perm == 0 {
		perm = 0o644
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	var r io.Reader = src
	if budget != nil {
		r = io.LimitReader(src, *budget+1)
	}
	n, err := io.Copy(dst, r)
	if err != nil {
		_ = dst.Close()
		return err
	}
	if budget != nil {
		if n > *budget {
			_ = dst.Close()
			_ = os.Remove(target) // best-effort cleanup
			return ErrTooLarge
		}
		*budget -= n
	}
	return dst.Close()
}
