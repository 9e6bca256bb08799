package store

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
)

// errTargetExists is returned by renameNoReplace when newpath is taken.
var errTargetExists = errors.New("rename target exists")

// renameChecked is the portable fallback: check, then rename. A directory
// rename onto a non-empty directory fails on every supported platform, and
// committed entries always hold a .manifest, so the race window cannot
// replace a committed entry.
func renameChecked(oldpath, newpath string) error {
	if _, err := os.Lstat(newpath); err == nil {
		return errTargetExists
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	err := os.Rename(oldpath, newpath)
	if errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST) || errors.Is(err, fs.ErrExist) {
		return errTargetExists
	}
	return err
}
