package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jamesainslie/implstore/pkg/implstore/archive"
	"github.com/jamesainslie/implstore/pkg/implstore/manifest"
	"github.com/jamesainslie/implstore/pkg/implstore/types"
)

// populateFunc fills a fresh staging directory.
type populateFunc func(ctx context.Context, staging string) error

// AddDirectory copies the tree at source into the store under expected.
//
// The copy is hashed with the format of expected's best slot. On a
// mismatch a *DigestMismatchError is returned; when a compatible entry
// already exists an *AlreadyInStoreError is returned. The staging copy is
// removed on every failure, including cancellation.
func (s *Store) AddDirectory(ctx context.Context, source string, expected manifest.Digest, onProgress types.ProgressFunc) error {
	info, err := os.Stat(source)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: %w", source, manifest.ErrNotDirectory)
	}

	return s.add(ctx, source, expected, onProgress, func(ctx context.Context, staging string) error {
		return s.copyTree(ctx, source, staging, onProgress)
	})
}

// AddArchives extracts archives in order into one staging directory and
// adds the result under expected. Later archives overlay earlier ones. The
// contract is otherwise that of AddDirectory.
func (s *Store) AddArchives(ctx context.Context, archives []archive.Source, expected manifest.Digest, onProgress types.ProgressFunc) error {
	if len(archives) == 0 {
		return errors.New("no archives to add")
	}

	return s.add(ctx, archives[0].Path, expected, onProgress, func(ctx context.Context, staging string) error {
		for _, src := range archives {
			if err := ctx.Err(); err != nil {
				return err
			}
			dest, err := archive.PrepareDestination(staging, src.Destination)
			if err != nil {
				return err
			}
			if err := s.opts.Extractor.Extract(ctx, src, dest, onProgress); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) add(ctx context.Context, source string, expected manifest.Digest, onProgress types.ProgressFunc, populate populateFunc) (err error) {
	format, want := expected.Best()
	if format == manifest.FormatUnknown {
		return ErrEmptyDigest
	}
	id := expected.BestID()

	unlock := s.locks.lock(id)
	defer unlock()

	if s.Contains(expected) {
		return &AlreadyInStoreError{Digest: expected}
	}

	staging, err := s.privateDir(stagingPrefix)
	if err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		if discardErr := s.discard(staging); discardErr != nil {
			logger.Error("removing staging directory failed", "path", staging, "error", discardErr)
		}
	}()

	if err := populate(ctx, staging); err != nil {
		return err
	}

	m, err := manifest.Generate(ctx, staging, manifest.Options{
		Format:     format,
		Workers:    s.opts.HashWorkers,
		OnProgress: onProgress,
	})
	if err != nil {
		return err
	}

	if actual := m.CalculateDigest(); actual != want {
		logger.Warn("digest mismatch", "source", source, "expected", id, "actual", format.Prefix()+"="+actual)
		return &DigestMismatchError{
			Path:     source,
			Expected: expected,
			Actual:   manifest.Digest{}.With(format, actual),
			Manifest: m,
		}
	}

	if err := writeManifest(staging, m); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.opts.ReadOnly {
		if err := makeReadOnly(staging); err != nil {
			return fmt.Errorf("making entry read-only: %w", err)
		}
	}

	final := filepath.Join(s.root, id)
	if err := renameNoReplace(staging, final); err != nil {
		if errors.Is(err, errTargetExists) {
			return &AlreadyInStoreError{Digest: expected}
		}
		return fmt.Errorf("committing %s: %w", id, err)
	}

	logger.Info("added implementation", "id", id, "source", source, "bytes", m.TotalSize)
	return nil
}

// writeManifest stores the encoded manifest at the root of dir.
func writeManifest(dir string, m *manifest.Manifest) error {
	p := filepath.Join(dir, manifest.ManifestFile)
	// The source tree may have carried its own .manifest, possibly a symlink.
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := m.WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing manifest: %w", err)
	}
	return f.Close()
}
