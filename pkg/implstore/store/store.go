// Package store implements the content-addressed implementation store: a
// directory whose immediate subdirectories are named "<algorithm>=<hex>"
// after the manifest digest of their contents.
//
// The directory listing is the index. Commits are a single exclusive rename
// from a private staging directory, and removals rename the entry away
// before deleting it, so concurrent readers never observe a partial entry.
// Nothing is locked at the OS level; several processes may share a root.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/jamesainslie/implstore/pkg/implstore/archive"
	"github.com/jamesainslie/implstore/pkg/implstore/logging"
	"github.com/jamesainslie/implstore/pkg/implstore/manifest"
	"github.com/jamesainslie/implstore/pkg/implstore/tuner"
)

var logger = logging.Get("store")

// Name prefixes of private directories under the root.
const (
	stagingPrefix = ".tmp-"
	removalPrefix = ".rm-"
)

// Options configures a Store.
type Options struct {
	// ReadOnly removes write permission from committed entries.
	ReadOnly bool

	// WalkWorkers bounds parallel directory enumeration.
	WalkWorkers int

	// HashWorkers bounds files hashed or copied at once within one tree.
	HashWorkers int

	// AuditWorkers bounds entries verified or scanned at once.
	AuditWorkers int

	// CopyBufferSize is the per-worker buffer used when copying files.
	CopyBufferSize int

	// Extractor unpacks archives for AddArchives. Nil uses archive.Default.
	Extractor archive.Extractor
}

// DefaultOptions returns options tuned to the current machine.
func DefaultOptions() Options {
	tuned := tuner.Auto(0, 0)
	return Options{
		ReadOnly:       true,
		WalkWorkers:    tuned.WalkWorkers,
		HashWorkers:    tuned.HashWorkers,
		AuditWorkers:   tuned.AuditWorkers,
		CopyBufferSize: tuned.CopyBufferSize,
		Extractor:      archive.NewExtractor(),
	}
}

// Validate fills in zero values with tuned defaults.
func (o *Options) Validate() error {
	if o.WalkWorkers < 1 || o.HashWorkers < 1 || o.AuditWorkers < 1 || o.CopyBufferSize < 1 {
		tuned := tuner.Auto(o.HashWorkers, o.AuditWorkers)
		if o.WalkWorkers < 1 {
			o.WalkWorkers = tuned.WalkWorkers
		}
		if o.HashWorkers < 1 {
			o.HashWorkers = tuned.HashWorkers
		}
		if o.AuditWorkers < 1 {
			o.AuditWorkers = tuned.AuditWorkers
		}
		if o.CopyBufferSize < 1 {
			o.CopyBufferSize = tuned.CopyBufferSize
		}
	}
	if o.Extractor == nil {
		o.Extractor = archive.NewExtractor()
	}
	return nil
}

// Store is a directory of committed implementations. It is safe for
// concurrent use.
type Store struct {
	root  string
	opts  Options
	locks *keyedMutex
}

// New opens the store at root, creating the directory when missing.
func New(root string, opts Options) (*Store, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving store root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating store root: %w", err)
	}

	return &Store{root: abs, opts: opts, locks: newKeyedMutex()}, nil
}

// Root returns the absolute store directory.
func (s *Store) Root() string {
	return s.root
}

// Contains reports whether an entry compatible with d exists.
func (s *Store) Contains(d manifest.Digest) bool {
	_, ok := s.GetPath(d)
	return ok
}

// GetPath returns the directory of an entry compatible with d. Slots are
// tried best first.
func (s *Store) GetPath(d manifest.Digest) (string, bool) {
	for _, id := range d.IDs() {
		p := filepath.Join(s.root, id)
		if info, err := os.Lstat(p); err == nil && info.IsDir() {
			return p, true
		}
	}
	return "", false
}

// entryDigest parses a directory name as a committed entry.
func entryDigest(name string) (manifest.Digest, bool) {
	d, err := manifest.ParseID(name)
	return d, err == nil
}

// ListAll returns the digests of all committed entries, sorted by ID.
func (s *Store) ListAll() ([]manifest.Digest, error) {
	entries, err := s.subdirectories()
	if err != nil {
		return nil, err
	}

	var digests []manifest.Digest
	for _, name := range entries {
		if d, ok := entryDigest(name); ok {
			digests = append(digests, d)
		}
	}
	sort.Slice(digests, func(i, j int) bool {
		return digests[i].BestID() < digests[j].BestID()
	})
	return digests, nil
}

// ListAllTemp returns the paths of subdirectories that are not committed
// entries: staging directories of in-flight adds and the remains of
// interrupted ones.
func (s *Store) ListAllTemp() ([]string, error) {
	entries, err := s.subdirectories()
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, name := range entries {
		if _, ok := entryDigest(name); !ok {
			paths = append(paths, filepath.Join(s.root, name))
		}
	}
	return paths, nil
}

// subdirectories lists the names of the root's immediate subdirectories.
func (s *Store) subdirectories() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("listing store: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// privateDir creates a fresh uniquely named directory under the root.
func (s *Store) privateDir(prefix string) (string, error) {
	p := filepath.Join(s.root, prefix+uuid.NewString())
	if err := os.Mkdir(p, 0o755); err != nil {
		return "", fmt.Errorf("creating staging directory: %w", err)
	}
	return p, nil
}

// privateName returns an unused path under the root without creating it.
func (s *Store) privateName(prefix string) string {
	return filepath.Join(s.root, prefix+uuid.NewString())
}

// discard deletes a private directory, restoring write permission first.
func (s *Store) discard(p string) error {
	if err := makeWritable(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("restoring permissions failed", "path", p, "error", err)
	}
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("removing %s: %w", p, err)
	}
	return nil
}
