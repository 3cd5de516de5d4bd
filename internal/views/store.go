package views

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	ErrNotFound = errors.New("view not found")
	ErrCorrupt  = errors.New("views file is not a JSON array")
)

// Store is the persisted view collection. Add and Delete are atomic with
// respect to each other.
type Store interface {
	Add(views []View) ([]View, error)
	Delete(id string) ([]View, error)
}

// FileStore keeps the collection in one JSON file. Read-modify-write cycles
// hold an in-process mutex and an flock on a sidecar "<path>.lock", and the
// file is replaced by rename so readers never see a partial write.
type FileStore struct {
	Path   string
	Logger *slog.Logger

	mu sync.Mutex
}

func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{Path: path, Logger: logger}
}

// Add appends the views whose id is not stored yet, in submission order,
// and returns the full collection. When nothing is new the file is left
// untouched. Within one batch only the first view with a given id counts.
func (s *FileStore) Add(views []View) ([]View, error) {
	var out []View
	err := s.locked(func() error {
		current, _, err := s.load()
		if err != nil {
			return err
		}

		seen := make(map[string]bool, len(current)+len(views))
		for _, v := range current {
			seen[v.ID] = true
		}
		var fresh []View
		for _, v := range views {
			if seen[v.ID] {
				continue
			}
			seen[v.ID] = true
			fresh = append(fresh, v)
		}

		if len(fresh) == 0 {
			s.Logger.Info("no new unique views to add")
			out = current
			return nil
		}

		updated := append(current, fresh...)
		if err := s.write(updated); err != nil {
			return err
		}
		s.Logger.Info("saved views", "added", len(fresh), "total", len(updated))
		out = updated
		return nil
	})
	return out, err
}

// Delete removes every view whose id equals id. ErrNotFound is returned, and
// nothing is written, when no view matched or the file does not exist.
func (s *FileStore) Delete(id string) ([]View, error) {
	var out []View
	err := s.locked(func() error {
		current, exists, err := s.load()
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: no views stored", ErrNotFound)
		}

		kept := make([]View, 0, len(current))
		for _, v := range current {
			if v.ID != id {
				kept = append(kept, v)
			}
		}
		if len(kept) == len(current) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}

		if err := s.write(kept); err != nil {
			return err
		}
		s.Logger.Info("deleted view", "id", id, "total", len(kept))
		out = kept
		return nil
	})
	return out, err
}

func (s *FileStore) locked(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create views dir: %w", err)
	}
	unlock, err := lockFile(s.Path + ".lock")
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// load reads the collection. A missing file is an empty collection.
func (s *FileStore) load() ([]View, bool, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return []View{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read views: %w", err)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil || items == nil {
		return nil, true, ErrCorrupt
	}
	out := make([]View, 0, len(items))
	for _, raw := range items {
		v, err := ParseView(raw)
		if err != nil {
			// Stored entries without an id are kept as-is under the empty id.
			s.Logger.Warn("stored view has no id", "err", err)
			v = View{Raw: raw}
		}
		out = append(out, v)
	}
	return out, true, nil
}

func (s *FileStore) write(views []View) error {
	data, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return fmt.Errorf("encode views: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".views-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("close temp: %w", err)
	}
	_ = os.Chmod(tmpName, 0o644) // best-effort permission sync

	if err := os.Rename(tmpName, s.Path); err != nil {
		_ = os.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("rename temp to %s: %w", s.Path, err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
