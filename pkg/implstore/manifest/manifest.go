package manifest

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Bookkeeping files kept at the root of a tree. They never appear in its
// manifest.
const (
	// ManifestFile holds the encoded manifest of a committed store entry.
	ManifestFile = ".manifest"

	// XbitFile lists files that are executable on filesystems that cannot
	// store the Unix execute bit.
	XbitFile = ".xbit"

	// SymlinkFile lists regular files that stand in for symlinks on
	// filesystems that cannot store them.
	SymlinkFile = ".symlink"
)

// ErrMalformed is returned when manifest text cannot be parsed.
var ErrMalformed = errors.New("malformed manifest")

// Manifest is the ordered list of nodes describing a tree.
type Manifest struct {
	// Format is the algorithm the manifest was produced with.
	Format Format

	// Nodes in manifest order.
	Nodes []Node

	// TotalSize is the sum of all file sizes (symlinks excluded).
	TotalSize int64
}

// New builds a manifest from nodes, computing TotalSize.
func New(format Format, nodes []Node) *Manifest {
	m := &Manifest{Format: format, Nodes: nodes}
	for _, n := range nodes {
		switch n := n.(type) {
		case FileNode:
			m.TotalSize += n.Size
		case ExecutableNode:
			m.TotalSize += n.Size
		}
	}
	return m
}

// Lines returns the encoded lines without trailing newlines.
func (m *Manifest) Lines() []string {
	lines := make([]string, len(m.Nodes))
	for i, n := range m.Nodes {
		lines[i] = Line(n)
	}
	return lines
}

// String returns the full manifest text, each line terminated by "\n".
func (m *Manifest) String() string {
	var b strings.Builder
	for _, n := range m.Nodes {
		b.WriteString(Line(n))
		b.WriteByte('\n')
	}
	return b.String()
}

// WriteTo writes the manifest text to w.
func (m *Manifest) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var written int64
	for _, n := range m.Nodes {
		c, err := bw.WriteString(Line(n) + "\n")
		written += int64(c)
		if err != nil {
			return written, err
		}
	}
	return written, bw.Flush()
}

// CalculateDigest hashes the manifest text with the format's hash function
// and returns the hex digest.
func (m *Manifest) CalculateDigest() string {
	h := m.Format.NewHash()
	for _, n := range m.Nodes {
		_, _ = io.WriteString(h, Line(n))
		_, _ = h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Digest returns a digest with only this manifest's own format slot set.
func (m *Manifest) Digest() Digest {
	return Digest{}.With(m.Format, m.CalculateDigest())
}

// Parse reads manifest text produced by String or WriteTo.
func Parse(format Format, r io.Reader) (*Manifest, error) {
	var nodes []Node
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		n, err := ParseLine(scanner.Text())
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return New(format, nodes), nil
}

// ReadFile parses the manifest stored at path.
func ReadFile(path string, format Format) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := Parse(format, f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return m, nil
}
