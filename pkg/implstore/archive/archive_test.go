package archive_test

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jamesainslie/implstore/pkg/implstore/archive"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var y2k = time.Unix(946684800, 0)

type member struct {
	name     string
	body     string
	mode     int64
	dir      bool
	linkname string
	hardlink bool
}

func sampleMembers() []member {
	return []member{
		{name: "pkg/", dir: true, mode: 0o755},
		{name: "pkg/README", body: "hello\n", mode: 0o644},
		{name: "pkg/bin/", dir: true, mode: 0o755},
		{name: "pkg/bin/tool", body: "#!/bin/sh\n", mode: 0o755},
		{name: "pkg/link", linkname: "README"},
	}
}

func tarBytes(t *testing.T, members []member) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, m := range members {
		hdr := &tar.Header{Name: m.name, Mode: m.mode, ModTime: y2k}
		switch {
		case m.dir:
			hdr.Typeflag = tar.TypeDir
		case m.hardlink:
			hdr.Typeflag = tar.TypeLink
			hdr.Linkname = m.linkname
		case m.linkname != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = m.linkname
			hdr.Mode = 0o777
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(m.body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(m.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func compress(t *testing.T, raw []byte, wrap func(io.Writer) (io.WriteCloser, error)) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := wrap(&buf)
	require.NoError(t, err)
	_, err = w.Write(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func zipBytes(t *testing.T, members []member) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		hdr := &zip.FileHeader{Name: m.name, Method: zip.Deflate, Modified: y2k}
		body := m.body
		switch {
		case m.dir:
			hdr.SetMode(fs.ModeDir | 0o755)
		case m.linkname != "":
			hdr.SetMode(fs.ModeSymlink | 0o777)
			body = m.linkname
		default:
			hdr.SetMode(fs.FileMode(m.mode))
		}
		w, err := zw.CreateHeader(hdr)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeArchive(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func extract(t *testing.T, src archive.Source) (string, error) {
	t.Helper()
	dest := t.TempDir()
	return dest, archive.NewExtractor().Extract(context.Background(), src, dest, nil)
}

func assertSampleTree(t *testing.T, root string) {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root, "README"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	info, err := os.Stat(filepath.Join(root, "README"))
	require.NoError(t, err)
	assert.Equal(t, y2k.Unix(), info.ModTime().Unix())
	assert.Zero(t, info.Mode().Perm()&0o111)

	tool, err := os.Stat(filepath.Join(root, "bin", "tool"))
	require.NoError(t, err)
	assert.NotZero(t, tool.Mode().Perm()&0o111, "executable bit preserved")

	target, err := os.Readlink(filepath.Join(root, "link"))
	require.NoError(t, err)
	assert.Equal(t, "README", target)
}

func TestExtractFormats(t *testing.T) {
	t.Parallel()

	raw := tarBytes(t, sampleMembers())
	tests := []struct {
		name string
		file string
		data []byte
	}{
		{"tar", "impl.tar", raw},
		{"gzip tar", "impl.tar.gz", compress(t, raw, func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriter(w), nil
		})},
		{"zstd tar", "impl.tar.zst", compress(t, raw, func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w)
		})},
		{"zip", "impl.zip", zipBytes(t, sampleMembers())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeArchive(t, tt.file, tt.data)
			dest, err := extract(t, archive.Source{Path: path, Extract: "pkg"})
			require.NoError(t, err)
			assertSampleTree(t, dest)
		})
	}
}

func TestExtractWholeArchive(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, "impl.tar", tarBytes(t, sampleMembers()))
	dest, err := extract(t, archive.Source{Path: path})
	require.NoError(t, err)
	assertSampleTree(t, filepath.Join(dest, "pkg"))
}

func TestExtractMissingSubdirectory(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, "impl.tar", tarBytes(t, sampleMembers()))
	_, err := extract(t, archive.Source{Path: path, Extract: "nothere"})
	assert.Error(t, err)
}

func TestExtractStartOffset(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name string
		mime string
		data []byte
	}{
		{"tar", archive.MimeTar, tarBytes(t, sampleMembers())},
		{"zip", archive.MimeZip, zipBytes(t, sampleMembers())},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data := append([]byte("#!/bin/sh\nexit 0\n"), tt.data...)
			path := writeArchive(t, "installer.run", data)
			dest, err := extract(t, archive.Source{
				Path:        path,
				MimeType:    tt.mime,
				StartOffset: int64(len("#!/bin/sh\nexit 0\n")),
				Extract:     "pkg",
			})
			require.NoError(t, err)
			assertSampleTree(t, dest)
		})
	}
}

func TestExtractRejectsUnsafeMembers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		members []member
	}{
		{"parent traversal", []member{{name: "../evil", body: "x", mode: 0o644}}},
		{"nested traversal", []member{{name: "a/../../evil", body: "x", mode: 0o644}}},
		{"absolute path", []member{{name: "/tmp/evil", body: "x", mode: 0o644}}},
		{"write through symlink", []member{
			{name: "escape", linkname: "/tmp"},
			{name: "escape/evil", body: "x", mode: 0o644},
		}},
		{"hard link outside", []member{{name: "link", linkname: "../../etc/passwd", hardlink: true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeArchive(t, "evil.tar", tarBytes(t, tt.members))
			_, err := extract(t, archive.Source{Path: path})
			assert.ErrorIs(t, err, archive.ErrUnsafePath)
		})
	}

	zipPath := writeArchive(t, "evil.zip", zipBytes(t, []member{{name: "../evil", body: "x", mode: 0o644}}))
	dest, err := extract(t, archive.Source{Path: zipPath})
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dest), "evil"))
}

func TestExtractHardLink(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, "links.tar", tarBytes(t, []member{
		{name: "a", body: "shared", mode: 0o644},
		{name: "b", linkname: "a", hardlink: true},
	}))
	dest, err := extract(t, archive.Source{Path: path})
	require.NoError(t, err)

	a, err := os.Stat(filepath.Join(dest, "a"))
	require.NoError(t, err)
	b, err := os.Stat(filepath.Join(dest, "b"))
	require.NoError(t, err)
	assert.True(t, os.SameFile(a, b))
}

func TestExtractOverlay(t *testing.T) {
	t.Parallel()

	first := writeArchive(t, "first.tar", tarBytes(t, []member{
		{name: "README", body: "old", mode: 0o644},
		{name: "keep", body: "kept", mode: 0o644},
	}))
	second := writeArchive(t, "second.tar", tarBytes(t, []member{
		{name: "README", body: "new", mode: 0o644},
	}))

	dest := t.TempDir()
	ex := archive.NewExtractor()
	require.NoError(t, ex.Extract(context.Background(), archive.Source{Path: first}, dest, nil))
	require.NoError(t, ex.Extract(context.Background(), archive.Source{Path: second}, dest, nil))

	data, err := os.ReadFile(filepath.Join(dest, "README"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	_, err = os.Stat(filepath.Join(dest, "keep"))
	assert.NoError(t, err)
}

func TestExtractUnsupportedType(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, "impl.rar", []byte("Rar!"))
	_, err := extract(t, archive.Source{Path: path})
	assert.ErrorIs(t, err, archive.ErrUnsupportedType)

	_, err = extract(t, archive.Source{Path: path, MimeType: "application/x-rar"})
	assert.ErrorIs(t, err, archive.ErrUnsupportedType)
}

func TestExtractCancelled(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, "impl.tar", tarBytes(t, sampleMembers()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := archive.NewExtractor().Extract(ctx, archive.Source{Path: path}, t.TempDir(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGuessMimeType(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"impl.tar":          archive.MimeTar,
		"impl.tar.gz":       archive.MimeTarGzip,
		"IMPL.TGZ":          archive.MimeTarGzip,
		"impl.tar.bz2":      archive.MimeTarBzip2,
		"impl.tbz":          archive.MimeTarBzip2,
		"impl.tar.zst":      archive.MimeTarZstd,
		"impl.zip":          archive.MimeZip,
		"impl.jar":          archive.MimeZip,
		"impl.tar.xz":       "",
		"no-extension-here": "",
	}
	for name, want := range tests {
		assert.Equal(t, want, archive.GuessMimeType(name), name)
	}
	assert.True(t, archive.Supported(archive.MimeTarBzip2))
	assert.False(t, archive.Supported(""))
}

func TestPrepareDestination(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	got, err := archive.PrepareDestination(root, "")
	require.NoError(t, err)
	assert.Equal(t, root, got)

	got, err = archive.PrepareDestination(root, "/lib/sub/")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "lib", "sub"), got)
	assert.DirExists(t, got)

	_, err = archive.PrepareDestination(root, "../outside")
	assert.ErrorIs(t, err, archive.ErrUnsafePath)
}

func TestPrepareDestinationRefusesSymlinks(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "lib")))
	require.NoError(t, os.Mkdir(filepath.Join(root, "real"), 0o755))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "real", "deeper")))

	for _, sub := range []string{"lib", "lib/sub", "real/deeper/sub"} {
		_, err := archive.PrepareDestination(root, sub)
		assert.ErrorIs(t, err, archive.ErrUnsafePath, sub)
	}
	assert.NoDirExists(t, filepath.Join(outside, "sub"))

	require.NoError(t, os.WriteFile(filepath.Join(root, "file"), nil, 0o644))
	_, err := archive.PrepareDestination(root, "file/sub")
	assert.Error(t, err)
}

func TestExtractHardLinkThroughSymlink(t *testing.T) {
	t.Parallel()

	outside := t.TempDir()
	secret := filepath.Join(outside, "secret")
	require.NoError(t, os.WriteFile(secret, []byte("top secret"), 0o600))

	path := writeArchive(t, "sneaky.tar", tarBytes(t, []member{
		{name: "a", linkname: outside},
		{name: "b", linkname: "a/secret", hardlink: true},
	}))
	dest, err := extract(t, archive.Source{Path: path})
	assert.ErrorIs(t, err, archive.ErrUnsafePath)
	assert.NoFileExists(t, filepath.Join(dest, "b"))
}

func TestExtractHardLinkToNonRegular(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		members []member
	}{
		{"symlink", []member{
			{name: "README", body: "x", mode: 0o644},
			{name: "l", linkname: "README"},
			{name: "h", linkname: "l", hardlink: true},
		}},
		{"directory", []member{
			{name: "d/", dir: true, mode: 0o755},
			{name: "h", linkname: "d", hardlink: true},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeArchive(t, "links.tar", tarBytes(t, tt.members))
			_, err := extract(t, archive.Source{Path: path})
			assert.ErrorIs(t, err, archive.ErrUnsafePath)
		})
	}
}
