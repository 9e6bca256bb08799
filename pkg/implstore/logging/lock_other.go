//go:build !unix

package logging

import "os"

// Without flock, writes from separate processes may interleave.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) {}
