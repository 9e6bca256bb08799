// Package filter selects, sorts and limits store entry listings. It matches
// entries by ID glob, manifest format, recorded size and commit age.
package filter

import (
	"errors"
	"fmt"
	"strings"
)

// SortField specifies the field to sort entries by.
type SortField int

const (
	// SortID sorts entries by their "algorithm=hex" name.
	SortID SortField = iota
	// SortSize sorts entries by total file size.
	SortSize
	// SortAge sorts entries by commit time.
	SortAge
)

// Sort field string constants.
const (
	sortFieldID   = "id"
	sortFieldSize = "size"
	sortFieldAge  = "age"
)

// String returns the string representation of the sort field.
func (s SortField) String() string {
	switch s {
	case SortSize:
		return sortFieldSize
	case SortAge:
		return sortFieldAge
	default:
		return sortFieldID
	}
}

// ErrInvalidSortField indicates that the sort field string could not be parsed.
var ErrInvalidSortField = errors.New("invalid sort field")

// ParseSortField parses "id", "size" or "age" (case-insensitive).
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case sortFieldID, "":
		return SortID, nil
	case sortFieldSize:
		return SortSize, nil
	case sortFieldAge:
		return SortAge, nil
	default:
		return SortID, fmt.Errorf("%w: %q", ErrInvalidSortField, s)
	}
}
