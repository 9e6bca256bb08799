package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jamesainslie/implstore/pkg/implstore/manifest"
	"github.com/jamesainslie/implstore/pkg/implstore/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aaaID = "sha256=cb1ad2119d8fafb69566510ee712661f9f14b83385006ef92aec47f523a38358"

func TestParseDigestArg(t *testing.T) {
	d, err := parseDigestArg(aaaID)
	require.NoError(t, err)
	assert.Equal(t, aaaID, d.BestID())

	d, err = parseDigestArg("sha1=da39a3ee5e6b4b0d3255bfef95601890afd80709, " + aaaID)
	require.NoError(t, err)
	assert.Equal(t, []string{aaaID, "sha1=da39a3ee5e6b4b0d3255bfef95601890afd80709"}, d.IDs())

	for _, bad := range []string{"", ",", "sha256", "md5=abc", "sha256=XYZ"} {
		_, err := parseDigestArg(bad)
		assert.ErrorIs(t, err, manifest.ErrInvalidID, "input %q", bad)
	}
}

func TestEnvOverrides(t *testing.T) {
	got := envOverrides([]string{
		"HOME=/home/me",
		"IMPLSTORE_WORKERS_HASH=4",
		"IMPLSTORE_STORE_PATH=/srv/impl",
		"SWEEP_MIN_SIZE=1G",
	})
	assert.Equal(t, []string{"IMPLSTORE_STORE_PATH=/srv/impl", "IMPLSTORE_WORKERS_HASH=4"}, got)
	assert.Empty(t, envOverrides(nil))
}

func TestWriteManifest(t *testing.T) {
	m := manifest.New(manifest.FormatSha256, []manifest.Node{
		manifest.DirectoryNode{FullPath: "/subdir"},
	})

	var full bytes.Buffer
	require.NoError(t, writeManifest(&full, m, false))
	assert.Equal(t, "D /subdir\n"+m.Digest().BestID()+"\n", full.String())

	var digest bytes.Buffer
	require.NoError(t, writeManifest(&digest, m, true))
	assert.Equal(t, m.Digest().BestID()+"\n", digest.String())
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("IMPLSTORE_LOGGING_PATH", filepath.Join(dir, "log", "implstore.log"))
	t.Setenv("IMPLSTORE_STORE_READ_ONLY", "false")

	root := filepath.Join(dir, "store")
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "subdir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "subdir", "file.txt"), []byte("AAA"), 0o644))

	out, err := execute(t, "manifest", src, "--format", "sha256new", "--digest", "--store", root, "-o", "ids")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.True(t, strings.HasPrefix(id, "sha256new="), id)

	out, err = execute(t, "add", id, src, "--store", root, "-o", "ids")
	require.NoError(t, err)
	assert.Equal(t, id+"\n", out)

	_, err = execute(t, "add", id, src, "--store", root, "-o", "ids")
	assert.ErrorIs(t, err, store.ErrAlreadyInStore)

	out, err = execute(t, "list", "--store", root, "-o", "json")
	require.NoError(t, err)
	var listed struct {
		Entries []struct {
			ID   string `json:"id"`
			Size int64  `json:"size"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed.Entries, 1)
	assert.Equal(t, id, listed.Entries[0].ID)
	assert.Equal(t, int64(3), listed.Entries[0].Size)

	out, err = execute(t, "list", "sha1=*", "--store", root, "-o", "ids")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = execute(t, "list", "--sort", "size", "--newer-than", "1h", "--store", root, "-o", "ids")
	require.NoError(t, err)
	assert.Equal(t, id+"\n", out)

	out, err = execute(t, "list", "--min-size", "1K", "--store", root, "-o", "ids")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = execute(t, "list", "--sort", "name", "--store", root, "-o", "ids")
	assert.Error(t, err)

	out, err = execute(t, "find", id, "--store", root, "-o", "ids")
	require.NoError(t, err)
	entry := strings.TrimSpace(out)
	assert.Equal(t, id, filepath.Base(entry))
	assert.DirExists(t, entry)

	_, err = execute(t, "verify", id, "--store", root, "-o", "ids")
	require.NoError(t, err)

	_, err = execute(t, "audit", "--store", root, "-o", "ids")
	require.NoError(t, err)

	out, err = execute(t, "optimise", "--store", root, "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"bytes_saved": 0`)

	require.NoError(t, os.WriteFile(filepath.Join(entry, "extra.txt"), []byte("BBB"), 0o644))
	out, err = execute(t, "audit", "--store", root, "-o", "ids")
	assert.ErrorIs(t, err, errDamaged)
	assert.Equal(t, entry+"\n", out)

	_, err = execute(t, "verify", id, "--store", root, "-o", "ids")
	assert.ErrorIs(t, err, errDamaged)

	stale := filepath.Join(root, ".tmp-stale")
	require.NoError(t, os.Mkdir(stale, 0o755))
	old := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(stale, old, old))

	out, err = execute(t, "list-temp", "--store", root, "-o", "ids")
	require.NoError(t, err)
	assert.Contains(t, out, ".tmp-stale")

	out, err = execute(t, "purge-temp", "--older-than", "1h", "--store", root, "-o", "ids")
	require.NoError(t, err)
	assert.Contains(t, out, ".tmp-stale")
	assert.NoDirExists(t, stale)

	out, err = execute(t, "remove", id, "--store", root, "-o", "ids")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed "+id)

	out, err = execute(t, "list", "--sort", "id", "--store", root, "-o", "ids")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = execute(t, "find", id, "--store", root, "-o", "ids")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	_, err = execute(t, "list", "--store", root, "-o", "nope")
	assert.ErrorContains(t, err, "unknown output format")
}
