package manifest

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is one line of a manifest. The set of implementations is closed:
// DirectoryNode, FileNode, ExecutableNode and SymlinkNode.
type Node interface {
	isNode()
}

// DirectoryNode records a directory by its path relative to the tree root.
// FullPath always starts with "/". The root itself has no node.
type DirectoryNode struct {
	FullPath string
}

// FileNode records a regular, non-executable file.
type FileNode struct {
	Hash  string
	MTime int64
	Size  int64
	Name  string
}

// ExecutableNode records a regular file with the execute bit set.
type ExecutableNode struct {
	Hash  string
	MTime int64
	Size  int64
	Name  string
}

// SymlinkNode records a symbolic link. Hash covers the target string, Size
// is the target's length in bytes.
type SymlinkNode struct {
	Hash string
	Size int64
	Name string
}

func (DirectoryNode) isNode()  {}
func (FileNode) isNode()       {}
func (ExecutableNode) isNode() {}
func (SymlinkNode) isNode()    {}

// Line encodes n without the trailing newline.
func Line(n Node) string {
	switch n := n.(type) {
	case DirectoryNode:
		return "D " + n.FullPath
	case FileNode:
		return fmt.Sprintf("F %s %d %d %s", n.Hash, n.MTime, n.Size, n.Name)
	case ExecutableNode:
		return fmt.Sprintf("X %s %d %d %s", n.Hash, n.MTime, n.Size, n.Name)
	case SymlinkNode:
		return fmt.Sprintf("S %s %d %s", n.Hash, n.Size, n.Name)
	default:
		panic(fmt.Sprintf("manifest: unknown node type %T", n))
	}
}

// ParseLine decodes a single manifest line (without the newline).
func ParseLine(line string) (Node, error) {
	if len(line) < 2 || line[1] != ' ' {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, line)
	}

	rest := line[2:]
	switch line[0] {
	case 'D':
		if !strings.HasPrefix(rest, "/") {
			return nil, fmt.Errorf("%w: directory path must be absolute: %q", ErrMalformed, line)
		}
		return DirectoryNode{FullPath: rest}, nil

	case 'F', 'X':
		parts := strings.SplitN(rest, " ", 4)
		if len(parts) != 4 || parts[3] == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, line)
		}
		mtime, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad mtime in %q", ErrMalformed, line)
		}
		size, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || size < 0 {
			return nil, fmt.Errorf("%w: bad size in %q", ErrMalformed, line)
		}
		if line[0] == 'X' {
			return ExecutableNode{Hash: parts[0], MTime: mtime, Size: size, Name: parts[3]}, nil
		}
		return FileNode{Hash: parts[0], MTime: mtime, Size: size, Name: parts[3]}, nil

	case 'S':
		parts := strings.SplitN(rest, " ", 3)
		if len(parts) != 3 || parts[2] == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, line)
		}
		size, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || size < 0 {
			return nil, fmt.Errorf("%w: bad length in %q", ErrMalformed, line)
		}
		return SymlinkNode{Hash: parts[0], Size: size, Name: parts[2]}, nil

	default:
		return nil, fmt.Errorf("%w: unknown node type %q", ErrMalformed, line[0])
	}
}
