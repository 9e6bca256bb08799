package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jamesainslie/implstore/pkg/implstore/types"
)

// writer materialises archive members below dest.
type writer struct {
	dest    string
	extract string
	tracker *types.Tracker
	matched bool
}

// relPath maps a member name to a slash-separated path relative to dest. ok
// is false for members outside the Extract prefix and for the prefix itself.
func (w *writer) relPath(name string) (rel string, ok bool, err error) {
	slashed := strings.ReplaceAll(name, "\\", "/")
	if path.IsAbs(slashed) || (len(slashed) > 1 && slashed[1] == ':') {
		return "", false, fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	clean := path.Clean(slashed)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false, fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	if clean == "." {
		return "", false, nil
	}

	if w.extract != "" {
		if clean == w.extract {
			w.matched = true
			return "", false, nil
		}
		if !strings.HasPrefix(clean, w.extract+"/") {
			return "", false, nil
		}
		clean = clean[len(w.extract)+1:]
		w.matched = true
	}
	return clean, true, nil
}

// walkDirs descends from root through parts, one component at a time.
// Components that are symlinks are refused since following them could
// leave root. With create set, missing directories are made; otherwise
// they are an error.
func walkDirs(root string, parts []string, create bool) (string, error) {
	dir := root
	for _, part := range parts {
		dir = filepath.Join(dir, part)
		info, err := os.Lstat(dir)
		switch {
		case errors.Is(err, fs.ErrNotExist) && create:
			if err := os.Mkdir(dir, 0o755); err != nil {
				return "", err
			}
		case err != nil:
			return "", err
		case info.Mode()&fs.ModeSymlink != 0:
			return "", fmt.Errorf("%w: %q passes through a symlink", ErrUnsafePath, strings.Join(parts, "/"))
		case !info.IsDir():
			return "", fmt.Errorf("%s: not a directory", dir)
		}
	}
	return dir, nil
}

// prepare creates the parents of rel and clears whatever non-directory is
// already at rel, so later archives can overlay earlier ones.
func (w *writer) prepare(rel string) (string, error) {
	parts := strings.Split(rel, "/")
	dir, err := walkDirs(w.dest, parts[:len(parts)-1], true)
	if err != nil {
		return "", err
	}

	target := filepath.Join(dir, parts[len(parts)-1])
	info, err := os.Lstat(target)
	if err == nil && !info.IsDir() {
		if err := os.Remove(target); err != nil {
			return "", err
		}
	}
	return target, nil
}

func (w *writer) dir(rel string) error {
	target, err := w.prepare(rel)
	if err != nil {
		return err
	}
	if err := os.Mkdir(target, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}
	return nil
}

func (w *writer) file(rel string, r io.Reader, mode fs.FileMode, mtime time.Time) (int64, error) {
	target, err := w.prepare(rel)
	if err != nil {
		return 0, err
	}

	perm := fs.FileMode(0o644)
	if mode&0o111 != 0 {
		perm = 0o755
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("writing %s: %w", target, err)
	}
	// The umask may have cleared bits from OpenFile's mode.
	if err := os.Chmod(target, perm); err != nil {
		return n, err
	}
	return n, os.Chtimes(target, mtime, mtime)
}

func (w *writer) symlink(rel, linkname string) error {
	target, err := w.prepare(rel)
	if err != nil {
		return err
	}
	return os.Symlink(linkname, target)
}

func (w *writer) hardlink(rel, linkname string) error {
	src, ok, err := w.relPath(linkname)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: hard link %q targets %q outside the extracted tree", ErrUnsafePath, rel, linkname)
	}
	if src == rel {
		return fmt.Errorf("hard link %q points at itself", rel)
	}
	parts := strings.Split(src, "/")
	dir, err := walkDirs(w.dest, parts[:len(parts)-1], false)
	if err != nil {
		return err
	}
	source := filepath.Join(dir, parts[len(parts)-1])
	info, err := os.Lstat(source)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: hard link %q targets %q, not a regular file", ErrUnsafePath, rel, linkname)
	}

	target, err := w.prepare(rel)
	if err != nil {
		return err
	}
	return os.Link(source, target)
}
