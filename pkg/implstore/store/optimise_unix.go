//go:build unix

package store

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isLinkUnsupported reports errors meaning the filesystem cannot hard-link
// this pair.
func isLinkUnsupported(err error) bool {
	if err == nil {
		return false
	}
	for _, errno := range []unix.Errno{unix.EXDEV, unix.EPERM, unix.EMLINK, unix.ENOTSUP, unix.EOPNOTSUPP} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return errors.Is(err, ErrUnsupported)
}
