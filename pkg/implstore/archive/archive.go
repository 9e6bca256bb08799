// Package archive unpacks implementation archives into a staging directory.
//
// Supported formats are plain, gzip, bzip2 and zstd compressed tarballs and
// zip files. Members that would land outside the destination are rejected.
// Modification times, executable bits and symlinks are preserved because
// they are part of an implementation's manifest.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/jamesainslie/implstore/pkg/implstore/logging"
	"github.com/jamesainslie/implstore/pkg/implstore/types"
)

var logger = logging.Get("archive")

// MIME types understood by the default extractor.
const (
	MimeTar      = "application/x-tar"
	MimeTarGzip  = "application/x-compressed-tar"
	MimeTarBzip2 = "application/x-bzip-compressed-tar"
	MimeTarZstd  = "application/x-zstd-compressed-tar"
	MimeZip      = "application/zip"
)

// Errors returned by extraction.
var (
	ErrUnsupportedType = errors.New("unsupported archive type")
	ErrUnsafePath      = errors.New("archive member escapes destination")
)

// Source describes one archive to unpack.
type Source struct {
	// Path is the archive file on disk.
	Path string `json:"path" yaml:"path"`

	// MimeType selects the format. Empty means GuessMimeType(Path).
	MimeType string `json:"mime_type,omitempty" yaml:"mime_type,omitempty"`

	// StartOffset is the number of leading bytes to skip, for archives
	// embedded in another file.
	StartOffset int64 `json:"start_offset,omitempty" yaml:"start_offset,omitempty"`

	// Extract keeps only members below this slash-separated subdirectory of
	// the archive, re-rooted at the destination.
	Extract string `json:"extract,omitempty" yaml:"extract,omitempty"`

	// Destination is a slash-separated subdirectory of the target tree to
	// unpack into. The store resolves it; extractors receive the final path.
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`
}

// Type returns the effective MIME type.
func (s Source) Type() string {
	if s.MimeType != "" {
		return s.MimeType
	}
	return GuessMimeType(s.Path)
}

// Extractor unpacks src into the existing directory dest.
type Extractor interface {
	Extract(ctx context.Context, src Source, dest string, onProgress types.ProgressFunc) error
}

// Default is the built-in Extractor.
type Default struct{}

// NewExtractor returns the built-in extractor.
func NewExtractor() *Default {
	return &Default{}
}

// Extract implements Extractor.
func (Default) Extract(ctx context.Context, src Source, dest string, onProgress types.ProgressFunc) error {
	mime := src.Type()
	if !Supported(mime) {
		return fmt.Errorf("%s: %w: %q", src.Path, ErrUnsupportedType, mime)
	}

	f, err := os.Open(src.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if src.StartOffset < 0 || src.StartOffset > info.Size() {
		return fmt.Errorf("%s: start offset %d outside archive of %d bytes", src.Path, src.StartOffset, info.Size())
	}
	size := info.Size() - src.StartOffset

	extract, err := cleanPrefix(src.Extract)
	if err != nil {
		return err
	}

	w := &writer{
		dest:    dest,
		extract: extract,
		tracker: types.NewTracker(types.OpExtract, onProgress),
	}

	logger.Debug("extracting", "archive", src.Path, "type", mime, "dest", dest, "extract", extract)

	if mime == MimeZip {
		err = extractZip(ctx, io.NewSectionReader(f, src.StartOffset, size), size, w)
	} else {
		if _, err := f.Seek(src.StartOffset, io.SeekStart); err != nil {
			return err
		}
		w.tracker.AddTotal(size)
		err = extractTar(ctx, f, mime, w)
	}
	if err != nil {
		return fmt.Errorf("extracting %s: %w", src.Path, err)
	}
	if extract != "" && !w.matched {
		return fmt.Errorf("extracting %s: no members below %q", src.Path, extract)
	}
	w.tracker.Flush()
	return nil
}

// Supported reports whether mime can be extracted.
func Supported(mime string) bool {
	switch mime {
	case MimeTar, MimeTarGzip, MimeTarBzip2, MimeTarZstd, MimeZip:
		return true
	default:
		return false
	}
}

// GuessMimeType maps a file name's extension to a MIME type, or "" when it
// is not recognised.
func GuessMimeType(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return MimeTarGzip
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"), strings.HasSuffix(lower, ".tbz"):
		return MimeTarBzip2
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return MimeTarZstd
	case strings.HasSuffix(lower, ".tar"):
		return MimeTar
	case strings.HasSuffix(lower, ".zip"), strings.HasSuffix(lower, ".jar"):
		return MimeZip
	default:
		return ""
	}
}

// cleanPrefix normalises a slash-separated subdirectory. It rejects paths
// that leave their root.
func cleanPrefix(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	clean := path.Clean(strings.TrimLeft(p, "/"))
	if clean == "." {
		return "", nil
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, p)
	}
	return clean, nil
}

// PrepareDestination creates the slash-separated subdirectory sub below
// root and returns its path. Existing components must be real directories;
// a symlink anywhere along sub is rejected with ErrUnsafePath.
func PrepareDestination(root, sub string) (string, error) {
	clean, err := cleanPrefix(sub)
	if err != nil {
		return "", err
	}
	if clean == "" {
		return root, nil
	}
	return walkDirs(root, strings.Split(clean, "/"), true)
}
