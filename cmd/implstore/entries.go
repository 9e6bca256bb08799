package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jamesainslie/implstore/pkg/implstore/manifest"
	"github.com/jamesainslie/implstore/pkg/implstore/output"
	"github.com/jamesainslie/implstore/pkg/implstore/store"
)

// errDamaged makes the process exit non-zero after a report listing
// mismatched entries has been printed.
var errDamaged = errors.New("damaged implementations found")

// parseDigestArg parses a comma-separated list of "algorithm=hex" IDs that
// all name the same tree.
func parseDigestArg(arg string) (manifest.Digest, error) {
	var ids []string
	for _, id := range strings.Split(arg, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return manifest.Digest{}, fmt.Errorf("%w: %q", manifest.ErrInvalidID, arg)
	}
	return manifest.NewDigest(ids...)
}

// describeEntry builds the display record for the entry compatible with d.
// The size comes from the entry's stored manifest; an unreadable manifest
// leaves it at zero.
func describeEntry(s *store.Store, d manifest.Digest) (output.Entry, error) {
	path, ok := s.GetPath(d)
	if !ok {
		return output.Entry{}, &store.NotFoundError{Digest: d}
	}
	info, err := os.Lstat(path)
	if err != nil {
		return output.Entry{}, err
	}

	named, err := manifest.ParseID(filepath.Base(path))
	if err != nil {
		return output.Entry{}, err
	}
	format, _ := named.Best()

	var size int64
	m, err := manifest.ReadFile(filepath.Join(path, manifest.ManifestFile), format)
	if err != nil {
		logger.Debug("entry manifest unreadable", "path", path, "error", err)
	} else {
		size = m.TotalSize
	}
	return output.NewEntry(named, path, size, info.ModTime()), nil
}

// collectMismatch appends err to r when it is a digest mismatch and returns
// any other error unchanged.
func collectMismatch(r *output.Report, err error) error {
	var mismatch *store.DigestMismatchError
	if errors.As(err, &mismatch) {
		r.Mismatches = append(r.Mismatches, output.NewMismatch(mismatch))
		return nil
	}
	return err
}
