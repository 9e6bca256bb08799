//go:build !unix

package store

import (
	"errors"
	"io/fs"
)

func isLinkUnsupported(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, fs.ErrPermission) || errors.Is(err, errors.ErrUnsupported) || errors.Is(err, ErrUnsupported)
}
