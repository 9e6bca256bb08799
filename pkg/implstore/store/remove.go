package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jamesainslie/implstore/pkg/implstore/manifest"
)

// Remove deletes the entry compatible with d. The entry is first renamed to
// a private name, so concurrent readers see either the whole entry or
// nothing. It returns a *NotFoundError when no entry matches.
func (s *Store) Remove(d manifest.Digest) error {
	for _, id := range d.IDs() {
		p := filepath.Join(s.root, id)
		info, err := os.Lstat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("removing %s: %w", id, err)
		}
		if !info.IsDir() {
			continue
		}

		dead := s.privateName(removalPrefix)
		if err := os.Rename(p, dead); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Lost a race with another Remove.
				continue
			}
			return fmt.Errorf("removing %s: %w", id, err)
		}

		logger.Info("removed implementation", "id", id)
		return s.discard(dead)
	}
	return &NotFoundError{Digest: d}
}
