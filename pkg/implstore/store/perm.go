package store

import (
	"io/fs"
	"os"

	"github.com/charlievieth/fastwalk"
)

// chmodTree applies change to the permission bits of root and everything
// below it. Symlinks are skipped since chmod would follow them.
func chmodTree(root string, change func(mode fs.FileMode, dir bool) fs.FileMode) error {
	apply := func(p string, info fs.FileInfo) error {
		perm := info.Mode().Perm()
		if next := change(perm, info.IsDir()); next != perm {
			return os.Chmod(p, next)
		}
		return nil
	}

	info, err := os.Lstat(root)
	if err != nil {
		return err
	}
	// The root must be traversable before the walk and may lose its write
	// bit only after it.
	if err := apply(root, info); err != nil {
		return err
	}

	conf := fastwalk.Config{Follow: false}
	return fastwalk.Walk(&conf, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return apply(p, info)
	})
}

// makeReadOnly clears every write bit below root.
func makeReadOnly(root string) error {
	return chmodTree(root, func(mode fs.FileMode, _ bool) fs.FileMode {
		return mode &^ 0o222
	})
}

// makeWritable restores owner write permission on directories so their
// contents can be renamed or deleted.
func makeWritable(root string) error {
	return chmodTree(root, func(mode fs.FileMode, dir bool) fs.FileMode {
		if !dir {
			return mode
		}
		return mode | 0o200
	})
}
