package manifest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/jamesainslie/implstore/pkg/implstore/logging"
	"github.com/jamesainslie/implstore/pkg/implstore/types"
	"github.com/sourcegraph/conc/pool"
)

var logger = logging.Get("manifest")

// Errors returned by Generate.
var (
	ErrNotDirectory    = errors.New("not a directory")
	ErrInvalidName     = errors.New("file name cannot be represented in a manifest")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// Options configures Generate.
type Options struct {
	// Format selects the algorithm. FormatUnknown means DefaultFormat.
	Format Format

	// Workers bounds directory and hashing concurrency. Zero means NumCPU.
	Workers int

	// OnProgress receives bytes hashed so far. Ignored when Tracker is set.
	OnProgress types.ProgressFunc

	// Tracker lets callers aggregate progress over several trees.
	Tracker *types.Tracker
}

type entryKind int

const (
	kindFile entryKind = iota
	kindDir
	kindSymlink
)

// walkEntry is what the parallel walk learns about one path.
type walkEntry struct {
	rel    string // slash-separated, relative to the root, no leading slash
	name   string
	kind   entryKind
	size   int64
	mtime  int64
	exec   bool
	target string
}

// sortKey orders entries byte-wise. The newer formats compare directories
// as if their name ended in "/".
func (e *walkEntry) sortKey(newOrder bool) string {
	if newOrder && e.kind == kindDir {
		return e.name + "/"
	}
	return e.name
}

// tree groups walk entries by parent directory.
type tree struct {
	mu       sync.Mutex
	children map[string][]*walkEntry
}

func (t *tree) add(parent string, e *walkEntry) {
	t.mu.Lock()
	t.children[parent] = append(t.children[parent], e)
	t.mu.Unlock()
}

// hashJob is a file whose content hash fills in nodes[index].
type hashJob struct {
	index int
	path  string
	entry *walkEntry
}

// Generate walks root and returns its manifest. Symlinks are recorded, never
// followed. Cancellation is honoured between files.
func Generate(ctx context.Context, root string, opts Options) (*Manifest, error) {
	format := opts.Format
	if format == FormatUnknown {
		format = DefaultFormat
	}
	if !format.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, int(format))
	}
	workers := opts.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", root, ErrNotDirectory)
	}

	xbits, err := readFlagFile(root, XbitFile)
	if err != nil {
		return nil, err
	}
	symlinks, err := readFlagFile(root, SymlinkFile)
	if err != nil {
		return nil, err
	}

	t, err := walk(ctx, root, workers, xbits, symlinks)
	if err != nil {
		return nil, err
	}

	var nodes []Node
	var jobs []hashJob
	t.emit(root, "", format, &nodes, &jobs)

	if err := hashFiles(ctx, format, workers, nodes, jobs, opts); err != nil {
		return nil, err
	}

	m := New(format, nodes)
	logger.Debug("manifest generated", "root", root, "format", format, "nodes", len(nodes), "bytes", m.TotalSize)
	return m, nil
}

// walk enumerates root in parallel.
func walk(ctx context.Context, root string, workers int, xbits, symlinks flagSet) (*tree, error) {
	t := &tree{children: make(map[string][]*walkEntry)}
	conf := fastwalk.Config{
		Follow:     false, // Symlinks are leaves.
		NumWorkers: workers,
	}

	err := fastwalk.Walk(&conf, root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if isBookkeeping(rel) {
			return nil
		}

		e, err := inspect(p, rel, d, xbits, symlinks)
		if err != nil {
			return err
		}

		parent := path.Dir(rel)
		if parent == "." {
			parent = ""
		}
		t.add(parent, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// inspect turns a directory entry into a walkEntry.
func inspect(p, rel string, d fs.DirEntry, xbits, symlinks flagSet) (*walkEntry, error) {
	name := d.Name()
	if strings.ContainsRune(name, '\n') {
		return nil, fmt.Errorf("%q: %w", p, ErrInvalidName)
	}

	e := &walkEntry{rel: rel, name: name}
	switch {
	case d.IsDir():
		e.kind = kindDir

	case d.Type()&fs.ModeSymlink != 0:
		target, err := os.Readlink(p)
		if err != nil {
			return nil, err
		}
		e.kind = kindSymlink
		e.target = target

	case d.Type().IsRegular():
		if symlinks.has(rel) {
			target, err := os.ReadFile(p)
			if err != nil {
				return nil, err
			}
			e.kind = kindSymlink
			e.target = string(target)
			return e, nil
		}
		info, err := d.Info()
		if err != nil {
			return nil, err
		}
		e.kind = kindFile
		e.size = info.Size()
		e.mtime = info.ModTime().Unix()
		e.exec = info.Mode().Perm()&0o111 != 0 || xbits.has(rel)

	default:
		return nil, fmt.Errorf("%s: %w: %s", p, ErrUnsupportedType, d.Type())
	}
	return e, nil
}

// emit appends the nodes for directory dir (relative) in manifest order.
// File nodes are placeholders until hashFiles fills them in.
func (t *tree) emit(root, dir string, format Format, nodes *[]Node, jobs *[]hashJob) {
	newOrder := format.IsNew()
	entries := t.children[dir]
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].sortKey(newOrder) < entries[j].sortKey(newOrder)
	})

	subdir := func(e *walkEntry) {
		*nodes = append(*nodes, DirectoryNode{FullPath: "/" + e.rel})
		t.emit(root, e.rel, format, nodes, jobs)
	}

	for _, e := range entries {
		switch {
		case e.kind == kindDir && !newOrder:
			subdir(e)
		case e.kind == kindDir:
			// Emitted after all the files of this directory.
		case e.kind == kindSymlink:
			*nodes = append(*nodes, SymlinkNode{
				Hash: hashString(format, e.target),
				Size: int64(len(e.target)),
				Name: e.name,
			})
		default:
			*jobs = append(*jobs, hashJob{
				index: len(*nodes),
				path:  filepath.Join(root, filepath.FromSlash(e.rel)),
				entry: e,
			})
			*nodes = append(*nodes, nil)
		}
	}

	if newOrder {
		for _, e := range entries {
			if e.kind == kindDir {
				subdir(e)
			}
		}
	}
}

// hashFiles fills in the file nodes using a bounded worker pool.
func hashFiles(ctx context.Context, format Format, workers int, nodes []Node, jobs []hashJob, opts Options) error {
	tracker := opts.Tracker
	if tracker == nil {
		tracker = types.NewTracker(types.OpHash, opts.OnProgress)
	}
	var total int64
	for _, job := range jobs {
		total += job.entry.size
	}
	tracker.AddTotal(total)

	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError().WithFirstError()
	for _, job := range jobs {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sum, size, err := hashFile(format, job.path)
			if err != nil {
				return err
			}
			e := job.entry
			if e.exec {
				nodes[job.index] = ExecutableNode{Hash: sum, MTime: e.mtime, Size: size, Name: e.name}
			} else {
				nodes[job.index] = FileNode{Hash: sum, MTime: e.mtime, Size: size, Name: e.name}
			}
			tracker.Add(size, e.rel)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tracker.Flush()
	return nil
}

// hashFile returns the hex content hash of path and the number of bytes read.
func hashFile(format Format, p string) (string, int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := format.NewHash()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hashing %s: %w", p, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// HashFile returns the hex content hash of the regular file at p, as it
// would appear on a manifest line of the given format.
func HashFile(format Format, p string) (string, error) {
	sum, _, err := hashFile(format, p)
	return sum, err
}

// hashString hashes s (a symlink target) with the format's hash.
func hashString(format Format, s string) string {
	h := format.NewHash()
	_, _ = io.WriteString(h, s)
	return hex.EncodeToString(h.Sum(nil))
}
