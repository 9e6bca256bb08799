// Package output provides formatters for displaying store reports in
// various output formats (pretty, plain, json, yaml, ids, template).
//
// The package uses a registry pattern so formatters can be selected by name
// at runtime.
//
// Basic usage:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, report); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/implstore/pkg/implstore/manifest"
	"github.com/jamesainslie/implstore/pkg/implstore/store"
	"github.com/jamesainslie/implstore/pkg/implstore/types"
)

// Entry describes one committed implementation.
type Entry struct {
	// ID is the entry's directory name, "algorithm=hex".
	ID string `json:"id" yaml:"id"`

	// Digest holds every known slot for the entry.
	Digest manifest.Digest `json:"digest" yaml:"digest"`

	// Path is the entry directory.
	Path string `json:"path" yaml:"path"`

	// Size is the total file size recorded in the entry's manifest.
	Size int64 `json:"size" yaml:"size"`

	// SizeHuman is Size formatted with binary units.
	SizeHuman string `json:"size_human" yaml:"size_human"`

	// ModTime is when the entry was committed.
	ModTime time.Time `json:"mod_time" yaml:"mod_time"`
}

// NewEntry builds an Entry, filling in the derived fields.
func NewEntry(d manifest.Digest, path string, size int64, modTime time.Time) Entry {
	return Entry{
		ID:        d.BestID(),
		Digest:    d,
		Path:      path,
		Size:      size,
		SizeHuman: types.FormatSize(size),
		ModTime:   modTime,
	}
}

// Mismatch is a tree whose contents do not match the digest it claims.
type Mismatch struct {
	Path     string `json:"path" yaml:"path"`
	Expected string `json:"expected" yaml:"expected"`
	Actual   string `json:"actual" yaml:"actual"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewMismatch converts a store mismatch error.
func NewMismatch(err *store.DigestMismatchError) Mismatch {
	m := Mismatch{
		Path:     err.Path,
		Expected: err.Expected.BestID(),
		Actual:   err.Actual.BestID(),
	}
	if err.Err != nil {
		m.Error = err.Err.Error()
	}
	return m
}

// actualOrError is what a formatter shows in the actual column.
func (m Mismatch) actualOrError() string {
	if m.Error != "" {
		return "error: " + m.Error
	}
	return m.Actual
}

// TempDir is a non-entry directory under the store root.
type TempDir struct {
	Path    string        `json:"path" yaml:"path"`
	ModTime time.Time     `json:"mod_time" yaml:"mod_time"`
	Age     time.Duration `json:"age" yaml:"age"`
}

// OptimiseStats mirrors store.OptimiseStats for display.
type OptimiseStats struct {
	BytesSaved int64 `json:"bytes_saved" yaml:"bytes_saved"`
	Linked     int   `json:"linked" yaml:"linked"`
	Skipped    int   `json:"skipped" yaml:"skipped"`
}

// Report is everything a command has to show.
type Report struct {
	// Command names the operation that produced the report.
	Command string `json:"command" yaml:"command"`

	// Root is the store directory.
	Root string `json:"root" yaml:"root"`

	Entries    []Entry    `json:"entries,omitempty" yaml:"entries,omitempty"`
	Mismatches []Mismatch `json:"mismatches,omitempty" yaml:"mismatches,omitempty"`
	Temps      []TempDir  `json:"temps,omitempty" yaml:"temps,omitempty"`

	// Optimise is set by the optimise command only.
	Optimise *OptimiseStats `json:"optimise,omitempty" yaml:"optimise,omitempty"`

	// Duration is how long the operation took.
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Warnings contains non-fatal problems met along the way.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// TotalSize returns the sum of all entry sizes in the report.
func (r *Report) TotalSize() int64 {
	var total int64
	for _, e := range r.Entries {
		total += e.Size
	}
	return total
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted report to the buffer.
	Format(w *bytes.Buffer, r *Report) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry.
// It will replace any existing formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
