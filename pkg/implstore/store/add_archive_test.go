package store_test

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jamesainslie/implstore/pkg/implstore/archive"
	"github.com/jamesainslie/implstore/pkg/implstore/manifest"
	"github.com/jamesainslie/implstore/pkg/implstore/store"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tarMember is a regular file stored in a test archive.
type tarMember struct {
	name, body string
}

func tarData(t *testing.T, members ...tarMember) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, m := range members {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeReg,
			Name:     m.name,
			Mode:     0o644,
			Size:     int64(len(m.body)),
			ModTime:  y2k,
		}))
		_, err := tw.Write([]byte(m.body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func gzipData(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zstdData(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func zipData(t *testing.T, members ...tarMember) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		hdr := &zip.FileHeader{Name: m.name, Method: zip.Deflate, Modified: y2k}
		hdr.SetMode(0o644)
		w, err := zw.CreateHeader(hdr)
		require.NoError(t, err)
		_, err = w.Write([]byte(m.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func saveArchive(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestAddArchivesMatchesDirectory(t *testing.T) {
	t.Parallel()

	want := digestOf(t, aaaTree(t), manifest.FormatSha256New)
	raw := tarData(t, tarMember{"pkg-1.0/subdir/file.txt", "AAA"})

	tests := []struct {
		name string
		src  archive.Source
	}{
		{
			name: "tar.gz with extract",
			src:  archive.Source{Path: saveArchive(t, "pkg.tar.gz", gzipData(t, raw)), Extract: "pkg-1.0"},
		},
		{
			name: "tar.zst with extract",
			src:  archive.Source{Path: saveArchive(t, "pkg.tar.zst", zstdData(t, raw)), Extract: "pkg-1.0"},
		},
		{
			name: "zip with destination",
			src: archive.Source{
				Path:        saveArchive(t, "pkg.zip", zipData(t, tarMember{"file.txt", "AAA"})),
				Destination: "subdir",
			},
		},
		{
			name: "explicit mime type",
			src: archive.Source{
				Path:     saveArchive(t, "download.bin", raw),
				MimeType: archive.MimeTar,
				Extract:  "pkg-1.0",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newStore(t, true)
			require.NoError(t, s.AddArchives(context.Background(), []archive.Source{tt.src}, want, nil))

			p, ok := s.GetPath(want)
			require.True(t, ok)
			data, err := os.ReadFile(filepath.Join(p, "subdir", "file.txt"))
			require.NoError(t, err)
			assert.Equal(t, "AAA", string(data))
		})
	}
}

func TestAddArchivesOverlay(t *testing.T) {
	t.Parallel()

	s := newStore(t, true)
	want := digestOf(t, aaaTree(t), manifest.FormatSha256New)
	first := saveArchive(t, "first.tar", tarData(t, tarMember{"subdir/file.txt", "BBB"}))
	second := saveArchive(t, "second.tar", tarData(t, tarMember{"subdir/file.txt", "AAA"}))

	err := s.AddArchives(context.Background(), []archive.Source{{Path: first}, {Path: second}}, want, nil)
	require.NoError(t, err)
	assert.True(t, s.Contains(want))
}

func TestAddArchivesMismatchCleansUp(t *testing.T) {
	t.Parallel()

	s := newStore(t, true)
	want := digestOf(t, aaaTree(t), manifest.FormatSha256New)
	src := saveArchive(t, "wrong.tar", tarData(t, tarMember{"subdir/file.txt", "BBB"}))

	err := s.AddArchives(context.Background(), []archive.Source{{Path: src}}, want, nil)
	assert.ErrorIs(t, err, store.ErrDigestMismatch)
	assert.False(t, s.Contains(want))

	temps, err := s.ListAllTemp()
	require.NoError(t, err)
	assert.Empty(t, temps)
}

func TestAddArchivesRejectsBadInput(t *testing.T) {
	t.Parallel()

	s := newStore(t, true)
	want := digestOf(t, aaaTree(t), manifest.FormatSha256New)

	err := s.AddArchives(context.Background(), nil, want, nil)
	assert.Error(t, err)

	unsupported := saveArchive(t, "pkg.rar", []byte("not really"))
	err = s.AddArchives(context.Background(), []archive.Source{{Path: unsupported}}, want, nil)
	assert.ErrorIs(t, err, archive.ErrUnsupportedType)

	tarball := saveArchive(t, "pkg.tar", tarData(t, tarMember{"subdir/file.txt", "AAA"}))
	err = s.AddArchives(context.Background(), []archive.Source{{Path: tarball, Destination: "../escape"}}, want, nil)
	assert.Error(t, err)

	temps, err := s.ListAllTemp()
	require.NoError(t, err)
	assert.Empty(t, temps)
}

func TestAddArchivesDestinationThroughSymlink(t *testing.T) {
	t.Parallel()

	s := newStore(t, true)
	outside := t.TempDir()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeSymlink,
		Name:     "lib",
		Linkname: outside,
		Mode:     0o777,
		ModTime:  y2k,
	}))
	require.NoError(t, tw.Close())
	first := saveArchive(t, "links.tar", buf.Bytes())
	second := saveArchive(t, "payload.tar", tarData(t, tarMember{"pwned.txt", "x"}))

	want := digestOf(t, aaaTree(t), manifest.FormatSha256New)
	err := s.AddArchives(context.Background(), []archive.Source{
		{Path: first},
		{Path: second, Destination: "lib"},
	}, want, nil)
	assert.ErrorIs(t, err, archive.ErrUnsafePath)
	assert.NoFileExists(t, filepath.Join(outside, "pwned.txt"))

	temps, err := s.ListAllTemp()
	require.NoError(t, err)
	assert.Empty(t, temps)
}
