package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// flagSet holds the "/relative/path" entries of a flag file such as .xbit.
type flagSet map[string]struct{}

// readFlagFile loads the flag file name from root. A missing file yields an
// empty set.
func readFlagFile(root, name string) (flagSet, error) {
	f, err := os.Open(filepath.Join(root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return flagSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading flag file: %w", err)
	}
	defer f.Close()

	flags := flagSet{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			line = "/" + line
		}
		flags[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Name(), err)
	}
	return flags, nil
}

func (s flagSet) has(rel string) bool {
	_, ok := s["/"+rel]
	return ok
}

// isBookkeeping reports whether rel names one of the files at the root of a
// tree that never appear in its manifest.
func isBookkeeping(rel string) bool {
	switch rel {
	case ManifestFile, XbitFile, SymlinkFile:
		return true
	default:
		return false
	}
}
