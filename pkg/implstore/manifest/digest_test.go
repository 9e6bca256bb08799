package manifest_test

import (
	"strings"
	"testing"

	"github.com/jamesainslie/implstore/pkg/implstore/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sha1Empty   = "da39a3ee5e6b4b0d3255bfef95601890afd80709"
	sha256Empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

func TestParseID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		id      string
		want    manifest.Digest
		wantErr bool
	}{
		{name: "sha1", id: "sha1=" + sha1Empty, want: manifest.Digest{Sha1: sha1Empty}},
		{name: "sha1new", id: "sha1new=" + sha1Empty, want: manifest.Digest{Sha1New: sha1Empty}},
		{name: "sha256", id: "sha256=" + sha256Empty, want: manifest.Digest{Sha256: sha256Empty}},
		{name: "sha256new", id: "sha256new=" + sha256Empty, want: manifest.Digest{Sha256New: sha256Empty}},
		{name: "missing separator", id: "sha1" + sha1Empty, wantErr: true},
		{name: "unknown prefix", id: "md5=d41d8cd98f00b204e9800998ecf8427e", wantErr: true},
		{name: "upper case prefix", id: "SHA1=" + sha1Empty, wantErr: true},
		{name: "too short", id: "sha1=" + sha1Empty[:39], wantErr: true},
		{name: "sha1 length under sha256", id: "sha256=" + sha1Empty, wantErr: true},
		{name: "not hex", id: "sha1=" + strings.Repeat("z", 40), wantErr: true},
		{name: "upper case hex", id: "sha1=" + strings.ToUpper(sha1Empty), wantErr: true},
		{name: "empty", id: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := manifest.ParseID(tt.id)
			if tt.wantErr {
				assert.ErrorIs(t, err, manifest.ErrInvalidID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.id, got.BestID())
		})
	}
}

func TestNewDigest(t *testing.T) {
	t.Parallel()

	d, err := manifest.NewDigest("sha1="+sha1Empty, "sha256new="+sha256Empty)
	require.NoError(t, err)
	assert.Equal(t, manifest.Digest{Sha1: sha1Empty, Sha256New: sha256Empty}, d)

	_, err = manifest.NewDigest("sha1="+sha1Empty, "sha1="+strings.Repeat("0", 40))
	assert.ErrorIs(t, err, manifest.ErrInvalidID, "conflicting values for one algorithm")

	_, err = manifest.NewDigest("sha1="+sha1Empty, "sha1="+sha1Empty)
	assert.NoError(t, err, "repeating the same value is fine")
}

func TestDigestBest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		digest manifest.Digest
		format manifest.Format
		value  string
	}{
		{"empty", manifest.Digest{}, manifest.FormatUnknown, ""},
		{"sha1 only", manifest.Digest{Sha1: "a"}, manifest.FormatSha1, "a"},
		{"sha1new beats sha1", manifest.Digest{Sha1: "a", Sha1New: "b"}, manifest.FormatSha1New, "b"},
		{"sha256 beats sha1new", manifest.Digest{Sha1New: "b", Sha256: "c"}, manifest.FormatSha256, "c"},
		{"sha256new beats all", manifest.Digest{Sha1: "a", Sha1New: "b", Sha256: "c", Sha256New: "d"}, manifest.FormatSha256New, "d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			format, value := tt.digest.Best()
			assert.Equal(t, tt.format, format)
			assert.Equal(t, tt.value, value)
		})
	}
}

func TestDigestCompatible(t *testing.T) {
	t.Parallel()

	full := manifest.Digest{Sha1: "a", Sha256New: "d"}

	assert.True(t, full.Compatible(manifest.Digest{Sha1: "a"}), "subset")
	assert.True(t, full.Compatible(manifest.Digest{Sha256New: "d", Sha256: "x"}), "overlapping slot matches")
	assert.False(t, full.Compatible(manifest.Digest{Sha256: "d"}), "same value under another algorithm")
	assert.False(t, full.Compatible(manifest.Digest{Sha1: "b"}), "different value")
	assert.False(t, manifest.Digest{}.Compatible(manifest.Digest{}), "empty digests share nothing")

	assert.True(t, full.Equal(manifest.Digest{Sha1: "a", Sha256New: "d"}))
	assert.False(t, full.Equal(manifest.Digest{Sha1: "a"}))
}

func TestDigestAccessors(t *testing.T) {
	t.Parallel()

	var d manifest.Digest
	assert.True(t, d.Empty())
	assert.Equal(t, "(empty digest)", d.String())
	assert.Empty(t, d.IDs())

	d2 := d.With(manifest.FormatSha1, sha1Empty).With(manifest.FormatSha256, sha256Empty)
	assert.True(t, d.Empty(), "With returns a copy")
	assert.Equal(t, sha1Empty, d2.Get(manifest.FormatSha1))
	assert.Equal(t, "", d2.Get(manifest.FormatSha1New))
	assert.Equal(t, []string{"sha256=" + sha256Empty, "sha1=" + sha1Empty}, d2.IDs())
	assert.Equal(t, "sha256="+sha256Empty, d2.String())
}
