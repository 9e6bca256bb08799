//go:build darwin

package store

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// renameNoReplace renames oldpath to newpath unless newpath exists, using
// renamex_np(RENAME_EXCL). Filesystems without support fall back to
// renameChecked.
func renameNoReplace(oldpath, newpath string) error {
	err := unix.RenamexNp(oldpath, newpath, unix.RENAME_EXCL)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EEXIST):
		return errTargetExists
	case errors.Is(err, unix.ENOTSUP), errors.Is(err, unix.EINVAL):
		return renameChecked(oldpath, newpath)
	default:
		return &os.LinkError{Op: "renamex_np", Old: oldpath, New: newpath, Err: err}
	}
}
