package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/tapehouse/controltape/internal/tape"
)

// WriteTape serializes t and writes it to path atomically: it encodes
// to a sibling ".tmp" file, takes an advisory lock on that temp file
// (so racing writers for the same destination block on each other),
// writes and closes it, then renames it into place. Readers therefore
// always observe either the previous tape or the fully written new one,
// never a partial file.
//
// The in-memory mirror is updated in place and the cached indexes are
// invalidated; call BuildIndex again to pick up the change. When
// markNew is set, path is added to the store's "new tapes" set used by
// the summary reporter.
func (s *Store) WriteTape(path string, t *tape.Tape, markNew bool) error {
	if err := tape.ValidateLenient(t); err != nil {
		return fmt.Errorf("store: write %s: %w", path, err)
	}

	data, err := tape.Encode(t)
	if err != nil {
		return fmt.Errorf("store: write %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("store: write %s: %w", path, err)
	}

	tmpPath := path + ".tmp"
	lock := flock.New(tmpPath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("store: lock %s: %w", tmpPath, err)
	}
	defer lock.Unlock()

	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("store: write temp %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: rename %s -> %s: %w", tmpPath, path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertOrReplaceLocked(path, t)
	if markNew {
		s.newSet[path] = struct{}{}
	}
	s.exact = nil
	s.bucket = nil

	return nil
}

// insertOrReplaceLocked updates the in-memory mirror for path, adding
// it to the load-order lists if it wasn't already present. Callers
// must hold s.mu.
func (s *Store) insertOrReplaceLocked(path string, t *tape.Tape) {
	for i, p := range s.paths {
		if p == path {
			s.tapes[i] = t
			return
		}
	}
	s.paths = append(s.paths, path)
	s.tapes = append(s.tapes, t)
}
