package vectorindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no persisted index exists for a handle.
var ErrNotFound = errors.New("index not found")

// Store persists and loads indexes by handle.
type Store interface {
	Save(ix *Index) error
	Load(handle string) (*Index, error)
	Delete(handle string) error
	Exists(handle string) bool
}

// FileStore keeps one JSON file per index under a base directory. Saves go
// through a temp file and rename, so a reader never observes an index whose
// vectors and chunks disagree.
type FileStore struct {
	dir string
	log *slog.Logger
}

// NewFileStore creates the base directory if needed.
func NewFileStore(dir string, log *slog.Logger) (*FileStore, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	return &FileStore{
		dir: dir,
		log: log.With("component", "index_store"),
	}, nil
}

// Save atomically replaces any prior index for the same handle.
func (s *FileStore) Save(ix *Index) error {
	if ix == nil || ix.Handle == "" {
		return fmt.Errorf("cannot save index without a handle")
	}

	data, err := json.Marshal(ix)
	if err != nil {
		return fmt.Errorf("encoding index %s: %w", ix.Handle, err)
	}

	final := s.path(ix.Handle)
	tmp, err := os.CreateTemp(s.dir, ix.Handle+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for index %s: %w", ix.Handle, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing index %s: %w", ix.Handle, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing index %s: %w", ix.Handle, err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("swapping index %s: %w", ix.Handle, err)
	}

	s.log.Debug("index saved", "handle", ix.Handle, "chunks", ix.Len(), "bytes", len(data))
	return nil
}

// Load reads a persisted index, returning ErrNotFound when absent.
func (s *FileStore) Load(handle string) (*Index, error) {
	data, err := os.ReadFile(s.path(handle))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading index %s: %w", handle, err)
	}

	var ix Index
	if err := json.Unmarshal(data, &ix); err != nil {
		return nil, fmt.Errorf("decoding index %s: %w", handle, err)
	}
	if len(ix.Vectors) != len(ix.Chunks) {
		return nil, fmt.Errorf("index %s is corrupt: %d vectors for %d chunks", handle, len(ix.Vectors), len(ix.Chunks))
	}
	return &ix, nil
}

// Delete removes a persisted index. Deleting a missing index is not an error.
func (s *FileStore) Delete(handle string) error {
	if err := os.Remove(s.path(handle)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting index %s: %w", handle, err)
	}
	return nil
}

// Exists reports whether a persisted index is present for the handle.
func (s *FileStore) Exists(handle string) bool {
	_, err := os.Stat(s.path(handle))
	return err == nil
}

func (s *FileStore) path(handle string) string {
	// Handles are derived from hex fingerprints, but sanitize anyway.
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, handle)
	return filepath.Join(s.dir, safe+".json")
}
