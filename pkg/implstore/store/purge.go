package store

import (
	"errors"
	"os"
	"time"
)

// PurgeTemp deletes non-entry subdirectories whose modification time is
// older than olderThan and returns their paths. Younger ones may belong to
// an add still in progress and are kept.
func (s *Store) PurgeTemp(olderThan time.Duration) ([]string, error) {
	temps, err := s.ListAllTemp()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-olderThan)
	var (
		removed []string
		errs    []error
	)
	for _, p := range temps {
		info, err := os.Lstat(p)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := s.discard(p); err != nil {
			errs = append(errs, err)
			continue
		}
		logger.Info("purged temporary directory", "path", p, "age", time.Since(info.ModTime()).Round(time.Second))
		removed = append(removed, p)
	}
	return removed, errors.Join(errs...)
}
