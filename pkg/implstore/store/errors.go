package store

import (
	"errors"
	"fmt"

	"github.com/jamesainslie/implstore/pkg/implstore/manifest"
)

// Sentinel errors. Typed errors below match them through errors.Is.
var (
	ErrAlreadyInStore = errors.New("implementation already in store")
	ErrNotFound       = errors.New("implementation not found in store")
	ErrDigestMismatch = errors.New("digest mismatch")
	ErrUnsupported    = errors.New("unsupported operation")
	ErrEmptyDigest    = errors.New("digest has no known algorithm")
)

// DigestMismatchError reports content that does not hash to the digest it
// was expected to have.
type DigestMismatchError struct {
	// Path is the source directory, archive or store entry that was hashed.
	Path string `json:"path" yaml:"path"`

	// Expected is the digest the caller claimed (or the entry's name).
	Expected manifest.Digest `json:"expected" yaml:"expected"`

	// Actual has the freshly computed value in Expected's best slot.
	Actual manifest.Digest `json:"actual" yaml:"actual"`

	// Manifest is the generated manifest, for finding the differing node.
	Manifest *manifest.Manifest `json:"-" yaml:"-"`

	// Err is set when the tree could not be hashed at all. Actual and
	// Manifest are then empty.
	Err error `json:"-" yaml:"-"`
}

func (e *DigestMismatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: digest mismatch: expected %s, cannot hash: %v", e.Path, e.Expected.BestID(), e.Err)
	}
	return fmt.Sprintf("%s: digest mismatch: expected %s, got %s", e.Path, e.Expected.BestID(), e.Actual.BestID())
}

// Is matches ErrDigestMismatch.
func (e *DigestMismatchError) Is(target error) bool {
	return target == ErrDigestMismatch
}

func (e *DigestMismatchError) Unwrap() error {
	return e.Err
}

// AlreadyInStoreError is returned by Add when a compatible entry exists.
type AlreadyInStoreError struct {
	Digest manifest.Digest
}

func (e *AlreadyInStoreError) Error() string {
	return fmt.Sprintf("%s: %s", e.Digest, ErrAlreadyInStore)
}

// Is matches ErrAlreadyInStore.
func (e *AlreadyInStoreError) Is(target error) bool {
	return target == ErrAlreadyInStore
}

// NotFoundError is returned when no compatible entry exists.
type NotFoundError struct {
	Digest manifest.Digest
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", e.Digest, ErrNotFound)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
