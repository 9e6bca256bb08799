package manifest_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jamesainslie/implstore/pkg/implstore/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleNodes() []manifest.Node {
	return []manifest.Node{
		manifest.FileNode{Hash: "aa", MTime: 946684800, Size: 3, Name: "file with spaces.txt"},
		manifest.ExecutableNode{Hash: "bb", MTime: 1, Size: 10, Name: "run"},
		manifest.SymlinkNode{Hash: "cc", Size: 6, Name: "link"},
		manifest.DirectoryNode{FullPath: "/sub dir"},
		manifest.FileNode{Hash: "dd", MTime: 2, Size: 0, Name: "empty"},
	}
}

func TestLine(t *testing.T) {
	t.Parallel()

	m := manifest.New(manifest.FormatSha256New, sampleNodes())
	assert.Equal(t, []string{
		"F aa 946684800 3 file with spaces.txt",
		"X bb 1 10 run",
		"S cc 6 link",
		"D /sub dir",
		"F dd 2 0 empty",
	}, m.Lines())
	assert.Equal(t, int64(13), m.TotalSize, "symlinks do not count")
	assert.Equal(t, strings.Join(m.Lines(), "\n")+"\n", m.String())
}

func TestWriteToMatchesString(t *testing.T) {
	t.Parallel()

	m := manifest.New(manifest.FormatSha1New, sampleNodes())
	var buf bytes.Buffer
	n, err := m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Equal(t, m.String(), buf.String())
}

func TestParseRestoresNodes(t *testing.T) {
	t.Parallel()

	m := manifest.New(manifest.FormatSha256New, sampleNodes())
	parsed, err := manifest.Parse(manifest.FormatSha256New, strings.NewReader(m.String()))
	require.NoError(t, err)
	assert.Equal(t, m.Nodes, parsed.Nodes)
	assert.Equal(t, m.TotalSize, parsed.TotalSize)
	assert.Equal(t, m.CalculateDigest(), parsed.CalculateDigest())
}

func TestParseLineRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, line := range []string{
		"",
		"F",
		"Q aa 1 2 name",
		"D relative",
		"F aa notanumber 3 name",
		"F aa 1 -3 name",
		"F aa 1 3",
		"X aa 1 3 ",
		"S aa name",
		"S aa x name",
	} {
		_, err := manifest.ParseLine(line)
		assert.ErrorIs(t, err, manifest.ErrMalformed, "%q", line)
	}
}

func TestEmptyManifestDigest(t *testing.T) {
	t.Parallel()

	m := manifest.New(manifest.FormatSha1, nil)
	assert.Equal(t, sha1Empty, m.CalculateDigest())
	assert.Equal(t, manifest.Digest{Sha1: sha1Empty}, m.Digest())

	m256 := manifest.New(manifest.FormatSha256New, nil)
	assert.Equal(t, manifest.Digest{Sha256New: sha256Empty}, m256.Digest())
}
