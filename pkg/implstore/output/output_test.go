package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jamesainslie/implstore/pkg/implstore/manifest"
	"github.com/jamesainslie/implstore/pkg/implstore/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const (
	aaaID = "sha256new=f3dc391a92d4557704561e96bcf5c410859a798f21032562096ffa2c35c43752"
	sha1E = "da39a3ee5e6b4b0d3255bfef95601890afd80709"
)

func sampleReport(t *testing.T) *Report {
	t.Helper()
	d, err := manifest.ParseID(aaaID)
	require.NoError(t, err)
	return &Report{
		Command: "list",
		Root:    "/cache/implementations",
		Entries: []Entry{
			NewEntry(d, "/cache/implementations/"+aaaID, 3, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)),
			NewEntry(manifest.Digest{Sha1: sha1E}, "/cache/implementations/sha1="+sha1E, 3*1024*1024, time.Time{}),
		},
		Duration: 1500 * time.Millisecond,
	}
}

func format(t *testing.T, name string, r *Report) string {
	t.Helper()
	f, err := Get(name)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, r))
	return buf.String()
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"ids", "json", "plain", "pretty", "template", "yaml"}, Available())

	_, err := Get("xml")
	assert.ErrorContains(t, err, "unknown formatter: xml")

	r := NewRegistry()
	r.Register("ids", func() Formatter { return &IDsFormatter{} })
	r.Register("ids", func() Formatter { return &PlainFormatter{} })
	f, err := r.Get("ids")
	require.NoError(t, err)
	assert.IsType(t, &PlainFormatter{}, f, "later registrations replace earlier ones")
	assert.Equal(t, []string{"ids"}, r.Available())
}

func TestNewEntry(t *testing.T) {
	e := NewEntry(manifest.Digest{Sha1: sha1E}, "/p", 1536*1024, time.Time{})
	assert.Equal(t, "sha1="+sha1E, e.ID)
	assert.Equal(t, "1.5 MiB", e.SizeHuman)
}

func TestNewMismatch(t *testing.T) {
	m := NewMismatch(&store.DigestMismatchError{
		Path:     "/store/sha1=abc",
		Expected: manifest.Digest{Sha1: strings.Repeat("a", 40)},
		Actual:   manifest.Digest{Sha1: sha1E},
	})
	assert.Equal(t, Mismatch{
		Path:     "/store/sha1=abc",
		Expected: "sha1=" + strings.Repeat("a", 40),
		Actual:   "sha1=" + sha1E,
	}, m)

	m = NewMismatch(&store.DigestMismatchError{
		Path:     "/store/sha1=abc",
		Expected: manifest.Digest{Sha1: strings.Repeat("a", 40)},
		Err:      errors.New("unsupported file type"),
	})
	assert.Empty(t, m.Actual)
	assert.Equal(t, "unsupported file type", m.Error)
	assert.Equal(t, "error: unsupported file type", m.actualOrError())
}

func TestReport_TotalSize(t *testing.T) {
	assert.Equal(t, int64(3+3*1024*1024), sampleReport(t).TotalSize())
	assert.Zero(t, (&Report{}).TotalSize())
}

func TestJSONFormatter(t *testing.T) {
	out := format(t, "json", sampleReport(t))

	var doc struct {
		Command string `json:"command"`
		Entries []struct {
			ID     string            `json:"id"`
			Digest map[string]string `json:"digest"`
			Size   int64             `json:"size"`
		} `json:"entries"`
		TotalSize int64  `json:"total_size"`
		Duration  string `json:"duration"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "list", doc.Command)
	require.Len(t, doc.Entries, 2)
	assert.Equal(t, aaaID, doc.Entries[0].ID)
	assert.Equal(t, map[string]string{"sha256new": strings.TrimPrefix(aaaID, "sha256new=")}, doc.Entries[0].Digest)
	assert.Equal(t, int64(3+3*1024*1024), doc.TotalSize)
	assert.Equal(t, "1.5s", doc.Duration)
}

func TestJSONFormatter_EmptyEntriesIsArray(t *testing.T) {
	out := format(t, "json", &Report{Command: "list"})
	assert.Contains(t, out, `"entries": []`)
}

func TestYAMLFormatter(t *testing.T) {
	r := sampleReport(t)
	r.Command = "audit"
	r.Mismatches = []Mismatch{{Path: "/x", Expected: "sha1=" + sha1E, Actual: "sha1=" + strings.Repeat("b", 40)}}
	out := format(t, "yaml", r)

	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "audit", doc["command"])
	assert.Len(t, doc["entries"], 2)
	assert.Len(t, doc["mismatches"], 1)
	assert.NotContains(t, doc, "temps")
}

func TestPlainFormatter(t *testing.T) {
	r := sampleReport(t)
	r.Temps = []TempDir{{Path: "/cache/implementations/.tmp-1", Age: 2 * time.Hour}}
	r.Optimise = &OptimiseStats{BytesSaved: 4096, Linked: 2}
	out := format(t, "plain", r)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, out, aaaID)
	assert.Contains(t, out, "3.0 MiB")
	assert.Contains(t, out, ".tmp-1")
	assert.Contains(t, out, "2h 0m")
	assert.Contains(t, out, "4096")
	assert.NotContains(t, out, "\x1b[", "no escape sequences")
}

func TestIDsFormatter(t *testing.T) {
	r := sampleReport(t)
	r.Temps = []TempDir{{Path: "/t"}}
	assert.Equal(t, aaaID+"\nsha1="+sha1E+"\n/t\n", format(t, "ids", r))
	assert.Empty(t, format(t, "ids", &Report{}))
}

func TestPrettyFormatter(t *testing.T) {
	out := format(t, "pretty", sampleReport(t))
	assert.Contains(t, out, "/cache/implementations")
	assert.Contains(t, out, "list")
	assert.Contains(t, out, aaaID)
	assert.Contains(t, out, "SIZE")
	assert.Contains(t, out, "Entries:")
}

func TestPrettyFormatter_Audit(t *testing.T) {
	clean := format(t, "pretty", &Report{Command: "audit", Root: "/s"})
	assert.Contains(t, clean, "store is consistent")

	damaged := format(t, "pretty", &Report{
		Command:    "audit",
		Root:       "/s",
		Mismatches: []Mismatch{{Path: "/s/sha1=" + sha1E, Expected: "sha1=" + sha1E, Actual: "sha1=x"}},
		Warnings:   []string{"skipped one entry"},
	})
	assert.Contains(t, damaged, "1 damaged entry")
	assert.Contains(t, damaged, "expected")
	assert.Contains(t, damaged, "skipped one entry")
	assert.NotContains(t, damaged, "store is consistent")
}

func TestPrettyFormatter_Empty(t *testing.T) {
	out := format(t, "pretty", &Report{Command: "list-temp", Root: "/s"})
	assert.Contains(t, out, "Nothing to report")
}

func TestTemplateFormatter(t *testing.T) {
	out := format(t, "template", sampleReport(t))
	assert.Equal(t, aaaID+"\t3 B\nsha1="+sha1E+"\t3.0 MiB\n", out)

	f := NewTemplateFormatter(`{{len .Entries}} entries, {{bytes .TotalSize}}{{range .Entries}} {{date .ModTime "2006"}}{{end}}`)
	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, sampleReport(t)))
	assert.Equal(t, "2 entries, 3.0 MiB 2024 ", buf.String())

	f.SetTemplate("{{.Missing")
	assert.Error(t, f.Format(&buf, sampleReport(t)))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m 30s"},
		{3*time.Hour + 5*time.Minute, "3h 5m"},
		{50 * time.Hour, "2d 2h"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in), tt.in.String())
	}
}
