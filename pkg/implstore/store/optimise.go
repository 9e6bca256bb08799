package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/jamesainslie/implstore/pkg/implstore/manifest"
	"github.com/jamesainslie/implstore/pkg/implstore/types"
)

// fileKey groups files that can share one inode without changing any
// manifest: equal content, size, mtime and executable flag.
type fileKey struct {
	format manifest.Format
	hash   string
	size   int64
	mtime  int64
	exec   bool
}

// OptimiseStats summarises an Optimise run.
type OptimiseStats struct {
	BytesSaved int64 `json:"bytes_saved" yaml:"bytes_saved"`
	Linked     int   `json:"linked" yaml:"linked"`
	Skipped    int   `json:"skipped" yaml:"skipped"`
}

// Optimise replaces duplicate files across entries with hard links to a
// single copy and returns the bytes saved. Pairs the filesystem cannot link
// are skipped.
func (s *Store) Optimise(ctx context.Context, onProgress types.ProgressFunc) (int64, error) {
	stats, err := s.OptimiseWithStats(ctx, onProgress)
	return stats.BytesSaved, err
}

// OptimiseWithStats is Optimise with link and skip counts.
func (s *Store) OptimiseWithStats(ctx context.Context, onProgress types.ProgressFunc) (OptimiseStats, error) {
	var stats OptimiseStats

	digests, err := s.ListAll()
	if err != nil {
		return stats, err
	}

	groups := make(map[fileKey][]string)
	for _, d := range digests {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		entry := filepath.Join(s.root, d.BestID())
		m, err := s.entryManifest(ctx, entry, d)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return stats, err
		}
		collectFiles(entry, m, groups)
	}

	keys := make([]fileKey, 0, len(groups))
	tracker := types.NewTracker(types.OpOptimise, onProgress)
	for key, paths := range groups {
		if len(paths) < 2 {
			continue
		}
		sort.Strings(paths)
		keys = append(keys, key)
		tracker.AddTotal(key.size * int64(len(paths)-1))
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].hash != keys[j].hash {
			return keys[i].hash < keys[j].hash
		}
		return keys[i].mtime < keys[j].mtime
	})

	if len(keys) == 0 {
		return stats, nil
	}

	work, err := s.privateDir(stagingPrefix)
	if err != nil {
		return stats, err
	}
	defer func() {
		if err := s.discard(work); err != nil {
			logger.Warn("removing optimise work directory failed", "path", work, "error", err)
		}
	}()

	for _, key := range keys {
		if err := s.linkGroup(ctx, work, key, groups[key], &stats, tracker); err != nil {
			return stats, err
		}
	}
	tracker.Flush()

	logger.Info("optimise finished", "saved", stats.BytesSaved, "linked", stats.Linked, "skipped", stats.Skipped)
	return stats, nil
}

// entryManifest returns the manifest written at commit time when it still
// hashes to the entry's name, and regenerates it otherwise.
func (s *Store) entryManifest(ctx context.Context, entry string, named manifest.Digest) (*manifest.Manifest, error) {
	format, want := named.Best()
	m, err := manifest.ReadFile(filepath.Join(entry, manifest.ManifestFile), format)
	if err == nil && m.CalculateDigest() == want {
		return m, nil
	}
	return manifest.Generate(ctx, entry, manifest.Options{Format: format, Workers: s.opts.HashWorkers})
}

func collectFiles(entry string, m *manifest.Manifest, groups map[fileKey][]string) {
	dir := ""
	for _, n := range m.Nodes {
		switch n := n.(type) {
		case manifest.DirectoryNode:
			dir = n.FullPath
		case manifest.FileNode:
			key := fileKey{format: m.Format, hash: n.Hash, size: n.Size, mtime: n.MTime}
			groups[key] = append(groups[key], filepath.Join(entry, filepath.FromSlash(dir+"/"+n.Name)))
		case manifest.ExecutableNode:
			key := fileKey{format: m.Format, hash: n.Hash, size: n.Size, mtime: n.MTime, exec: true}
			groups[key] = append(groups[key], filepath.Join(entry, filepath.FromSlash(dir+"/"+n.Name)))
		}
	}
}

// linkGroup links every path in paths to the first copy whose content
// still hashes to key. Copies changed behind the store's back are left
// alone so no entry ever takes on another entry's damage.
func (s *Store) linkGroup(ctx context.Context, work string, key fileKey, paths []string, stats *OptimiseStats, tracker *types.Tracker) error {
	source, canonical := intactCopy(key, paths)
	if canonical == nil {
		logger.Debug("skipping group, no intact copy", "hash", key.hash)
		return nil
	}

	var replaced []fs.FileInfo
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == source {
			continue
		}

		info, err := os.Lstat(p)
		if err != nil || os.SameFile(canonical, info) {
			continue
		}
		if !matchesKey(info, key) || info.Mode().Perm() != canonical.Mode().Perm() || !contentMatches(key, p) {
			logger.Debug("skipping file that no longer matches its manifest", "path", p)
			continue
		}

		err = replaceWithLink(work, source, p)
		if isLinkUnsupported(err) {
			logger.Debug("hard link not possible", "path", p, "error", err)
			stats.Skipped++
			continue
		}
		if err != nil {
			return err
		}

		stats.Linked++
		if !containsFile(replaced, info) {
			stats.BytesSaved += key.size
			replaced = append(replaced, info)
		}
		tracker.Add(key.size, p)
	}
	return nil
}

// intactCopy returns the first of paths whose metadata and content match key.
func intactCopy(key fileKey, paths []string) (string, fs.FileInfo) {
	for _, p := range paths {
		info, err := os.Lstat(p)
		if err != nil || !matchesKey(info, key) {
			continue
		}
		if contentMatches(key, p) {
			return p, info
		}
		logger.Warn("file does not match its manifest", "path", p)
	}
	return "", nil
}

func matchesKey(info fs.FileInfo, key fileKey) bool {
	return info.Mode().IsRegular() && info.Size() == key.size && info.ModTime().Unix() == key.mtime
}

func contentMatches(key fileKey, p string) bool {
	sum, err := manifest.HashFile(key.format, p)
	return err == nil && sum == key.hash
}

func containsFile(infos []fs.FileInfo, info fs.FileInfo) bool {
	for _, other := range infos {
		if os.SameFile(other, info) {
			return true
		}
	}
	return false
}

// replaceWithLink atomically replaces dst with a hard link to src. The link
// is made in work first so an interrupted run never leaves extra names
// inside an entry.
func replaceWithLink(work, src, dst string) (err error) {
	dir := filepath.Dir(dst)
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0o200 == 0 {
		if err := os.Chmod(dir, perm|0o200); err != nil {
			return err
		}
		defer func() {
			if restoreErr := os.Chmod(dir, perm); restoreErr != nil && err == nil {
				err = restoreErr
			}
		}()
	}

	tmp := filepath.Join(work, uuid.NewString())
	if err := os.Link(src, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", dst, err)
	}
	return nil
}
