// Package manifest serialises directory trees into deterministic manifests
// and computes the digests that name implementations in the store.
//
// A manifest is a sequence of lines, one per filesystem node:
//
//	D /full/path
//	F <hash> <mtime> <size> <name>
//	X <hash> <mtime> <size> <name>
//	S <hash> <length> <name>
//
// The digest of a tree is the hash of its manifest text. Four formats exist:
// two hash families (SHA-1, SHA-256) times two generations that differ in
// how entries are ordered.
package manifest

import (
	"crypto/sha1" //nolint:gosec // legacy manifest formats are defined over SHA-1
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"strings"
)

// Format identifies a manifest algorithm.
type Format int

// Formats in increasing order of preference.
const (
	FormatUnknown Format = iota
	FormatSha1
	FormatSha1New
	FormatSha256
	FormatSha256New
)

// DefaultFormat is used when no format is requested.
const DefaultFormat = FormatSha256New

// ErrUnknownFormat is returned when an algorithm prefix is not recognised.
var ErrUnknownFormat = errors.New("unknown manifest format")

// Formats returns every known format, most preferred first.
func Formats() []Format {
	return []Format{FormatSha256New, FormatSha256, FormatSha1New, FormatSha1}
}

// Prefix returns the algorithm name used in store entry names.
func (f Format) Prefix() string {
	switch f {
	case FormatSha1:
		return "sha1"
	case FormatSha1New:
		return "sha1new"
	case FormatSha256:
		return "sha256"
	case FormatSha256New:
		return "sha256new"
	default:
		return "unknown"
	}
}

// String implements fmt.Stringer.
func (f Format) String() string {
	return f.Prefix()
}

// Valid reports whether f is one of the four known formats.
func (f Format) Valid() bool {
	return f >= FormatSha1 && f <= FormatSha256New
}

// IsNew reports whether f uses the newer files-before-directories ordering.
func (f Format) IsNew() bool {
	return f == FormatSha1New || f == FormatSha256New
}

// NewHash returns a fresh hash for file contents and the final digest.
func (f Format) NewHash() hash.Hash {
	switch f {
	case FormatSha1, FormatSha1New:
		return sha1.New() //nolint:gosec
	default:
		return sha256.New()
	}
}

// HexLen is the length of a hex digest produced by f.
func (f Format) HexLen() int {
	switch f {
	case FormatSha1, FormatSha1New:
		return sha1.Size * 2
	default:
		return sha256.Size * 2
	}
}

// ParseFormat converts an algorithm prefix such as "sha256new" to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sha1":
		return FormatSha1, nil
	case "sha1new":
		return FormatSha1New, nil
	case "sha256":
		return FormatSha256, nil
	case "sha256new":
		return FormatSha256New, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}
