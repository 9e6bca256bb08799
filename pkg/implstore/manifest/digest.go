package manifest

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidID is returned when an "algorithm=hexdigest" string cannot be
// parsed.
var ErrInvalidID = errors.New("invalid manifest digest")

// Digest names the same content under up to four algorithms. The zero value
// is the empty digest. Digest is a value type; With returns a modified copy.
type Digest struct {
	Sha1      string `json:"sha1,omitempty" yaml:"sha1,omitempty"`
	Sha1New   string `json:"sha1new,omitempty" yaml:"sha1new,omitempty"`
	Sha256    string `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	Sha256New string `json:"sha256new,omitempty" yaml:"sha256new,omitempty"`
}

// ParseID parses a single "algorithm=hexdigest" string.
func ParseID(id string) (Digest, error) {
	prefix, value, ok := strings.Cut(id, "=")
	if !ok {
		return Digest{}, fmt.Errorf("%w: %q has no algorithm prefix", ErrInvalidID, id)
	}

	format, err := ParseFormat(prefix)
	if err != nil {
		return Digest{}, fmt.Errorf("%w: %q: %w", ErrInvalidID, id, err)
	}
	if prefix != format.Prefix() {
		return Digest{}, fmt.Errorf("%w: %q: algorithm must be lower case", ErrInvalidID, id)
	}
	if err := validateHex(format, value); err != nil {
		return Digest{}, fmt.Errorf("%w: %q: %w", ErrInvalidID, id, err)
	}

	return Digest{}.With(format, value), nil
}

// NewDigest builds a digest from several "algorithm=hexdigest" IDs naming
// the same content.
func NewDigest(ids ...string) (Digest, error) {
	var d Digest
	for _, id := range ids {
		parsed, err := ParseID(id)
		if err != nil {
			return Digest{}, err
		}
		format, value := parsed.Best()
		if existing := d.Get(format); existing != "" && existing != value {
			return Digest{}, fmt.Errorf("%w: conflicting %s values", ErrInvalidID, format)
		}
		d = d.With(format, value)
	}
	return d, nil
}

func validateHex(format Format, value string) error {
	if len(value) != format.HexLen() {
		return fmt.Errorf("expected %d hex characters, got %d", format.HexLen(), len(value))
	}
	if strings.ToLower(value) != value {
		return errors.New("hex digest must be lower case")
	}
	if _, err := hex.DecodeString(value); err != nil {
		return errors.New("digest is not valid hex")
	}
	return nil
}

// Get returns the hex value stored for format, or "".
func (d Digest) Get(format Format) string {
	switch format {
	case FormatSha1:
		return d.Sha1
	case FormatSha1New:
		return d.Sha1New
	case FormatSha256:
		return d.Sha256
	case FormatSha256New:
		return d.Sha256New
	default:
		return ""
	}
}

// With returns a copy of d with the slot for format set to value.
func (d Digest) With(format Format, value string) Digest {
	switch format {
	case FormatSha1:
		d.Sha1 = value
	case FormatSha1New:
		d.Sha1New = value
	case FormatSha256:
		d.Sha256 = value
	case FormatSha256New:
		d.Sha256New = value
	}
	return d
}

// Empty reports whether no slot is set.
func (d Digest) Empty() bool {
	return d == Digest{}
}

// Equal reports whether every slot matches.
func (d Digest) Equal(other Digest) bool {
	return d == other
}

// Compatible reports whether d and other share at least one algorithm with
// the same value. Compatible digests name the same store entry.
func (d Digest) Compatible(other Digest) bool {
	for _, f := range Formats() {
		a, b := d.Get(f), other.Get(f)
		if a != "" && a == b {
			return true
		}
	}
	return false
}

// Best returns the most preferred non-empty slot. It returns FormatUnknown
// for the empty digest.
func (d Digest) Best() (Format, string) {
	for _, f := range Formats() {
		if v := d.Get(f); v != "" {
			return f, v
		}
	}
	return FormatUnknown, ""
}

// BestID returns the most preferred slot as "algorithm=hexdigest".
func (d Digest) BestID() string {
	f, v := d.Best()
	if f == FormatUnknown {
		return ""
	}
	return f.Prefix() + "=" + v
}

// IDs returns every non-empty slot as "algorithm=hexdigest", best first.
func (d Digest) IDs() []string {
	var ids []string
	for _, f := range Formats() {
		if v := d.Get(f); v != "" {
			ids = append(ids, f.Prefix()+"="+v)
		}
	}
	return ids
}

// String implements fmt.Stringer.
func (d Digest) String() string {
	if d.Empty() {
		return "(empty digest)"
	}
	return d.BestID()
}
