package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/jamesainslie/implstore/pkg/implstore/manifest"
	"github.com/jamesainslie/implstore/pkg/implstore/types"
	"github.com/sourcegraph/conc/pool"
)

// Verify regenerates the manifest of the entry compatible with d and
// returns a *DigestMismatchError if it no longer matches its name.
func (s *Store) Verify(ctx context.Context, d manifest.Digest, onProgress types.ProgressFunc) error {
	p, ok := s.GetPath(d)
	if !ok {
		return &NotFoundError{Digest: d}
	}
	named, _ := entryDigest(filepath.Base(p))

	mismatch, err := s.verifyEntry(ctx, named, types.NewTracker(types.OpHash, onProgress))
	if err != nil {
		return err
	}
	if mismatch != nil {
		return mismatch
	}
	return nil
}

// Audit verifies every entry. Entries whose contents no longer match their
// names are returned, sorted by path; nothing is modified. An empty result
// means the store is consistent. An entry that cannot be hashed at all is
// reported as a mismatch with Err set, and the remaining entries are still
// checked.
func (s *Store) Audit(ctx context.Context, onProgress types.ProgressFunc) ([]*DigestMismatchError, error) {
	digests, err := s.ListAll()
	if err != nil {
		return nil, err
	}

	tracker := types.NewTracker(types.OpAudit, onProgress)
	p := pool.NewWithResults[*DigestMismatchError]().
		WithContext(ctx).
		WithMaxGoroutines(s.opts.AuditWorkers).
		WithCancelOnError().
		WithFirstError()
	for _, d := range digests {
		p.Go(func(ctx context.Context) (*DigestMismatchError, error) {
			m, err := s.verifyEntry(ctx, d, tracker)
			if err != nil && ctx.Err() == nil {
				logger.Warn("cannot hash entry", "id", d.BestID(), "error", err)
				return &DigestMismatchError{
					Path:     filepath.Join(s.root, d.BestID()),
					Expected: d,
					Err:      err,
				}, nil
			}
			return m, err
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, err
	}
	tracker.Flush()

	var mismatches []*DigestMismatchError
	for _, m := range results {
		if m != nil {
			mismatches = append(mismatches, m)
		}
	}
	sort.Slice(mismatches, func(i, j int) bool {
		return mismatches[i].Path < mismatches[j].Path
	})

	logger.Info("audit finished", "entries", len(digests), "mismatches", len(mismatches))
	return mismatches, nil
}

// verifyEntry checks the entry named by the single-slot digest named. An
// entry removed while being checked is not a mismatch.
func (s *Store) verifyEntry(ctx context.Context, named manifest.Digest, tracker *types.Tracker) (*DigestMismatchError, error) {
	format, want := named.Best()
	p := filepath.Join(s.root, named.BestID())

	m, err := manifest.Generate(ctx, p, manifest.Options{
		Format:  format,
		Workers: s.opts.HashWorkers,
		Tracker: tracker,
	})
	if err != nil {
		if _, statErr := os.Lstat(p); errors.Is(statErr, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	actual := m.CalculateDigest()
	if actual == want {
		return nil, nil
	}
	logger.Warn("entry does not match its name", "path", p, "actual", format.Prefix()+"="+actual)
	return &DigestMismatchError{
		Path:     p,
		Expected: named,
		Actual:   manifest.Digest{}.With(format, actual),
		Manifest: m,
	}, nil
}
