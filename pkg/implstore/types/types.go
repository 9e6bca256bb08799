// Package types provides data types shared across the implementation store:
// progress reports, the throttled progress tracker used by long-running
// operations, and size parsing and formatting helpers.
package types

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// Operation names reported in Progress.Op.
const (
	OpHash     = "hash"
	OpCopy     = "copy"
	OpExtract  = "extract"
	OpAudit    = "audit"
	OpOptimise = "optimise"
)

// Progress reports how far a long-running operation has got.
// It is a snapshot; consumers must not assume monotonic delivery order
// when the producer is multi-threaded.
type Progress struct {
	// Op names the phase producing the report (hash, copy, extract, ...).
	Op string `json:"op"`

	// Processed is the number of bytes handled so far.
	Processed int64 `json:"processed"`

	// Total is the number of bytes expected, or 0 when unknown.
	Total int64 `json:"total"`

	// CurrentPath is the item most recently finished.
	CurrentPath string `json:"current_path,omitempty"`
}

// Fraction returns Processed/Total, or 0 when the total is unknown.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Processed) / float64(p.Total)
}

// ProgressFunc receives progress reports. It must be safe to call from
// multiple goroutines.
type ProgressFunc func(Progress)

// progressInterval throttles callbacks so hashing many small files does not
// spend its time in the sink.
const progressInterval = 10 * time.Millisecond

// Tracker accumulates byte counts from concurrent workers and forwards
// throttled snapshots to a ProgressFunc. A nil *Tracker is valid and
// discards everything.
type Tracker struct {
	op        string
	fn        ProgressFunc
	total     atomic.Int64
	processed atomic.Int64
	current   atomic.Value
	last      atomic.Int64
}

// NewTracker returns a tracker for op. fn may be nil.
func NewTracker(op string, fn ProgressFunc) *Tracker {
	t := &Tracker{op: op, fn: fn}
	t.current.Store("")
	return t
}

// AddTotal grows the expected byte count.
func (t *Tracker) AddTotal(n int64) {
	if t == nil {
		return
	}
	t.total.Add(n)
}

// Add records n processed bytes for path and reports if the throttle allows.
func (t *Tracker) Add(n int64, path string) {
	if t == nil {
		return
	}
	t.processed.Add(n)
	t.current.Store(path)
	t.report(false)
}

// Flush reports the current state regardless of the throttle.
func (t *Tracker) Flush() {
	if t == nil {
		return
	}
	t.report(true)
}

// Snapshot returns the current state without calling the sink.
func (t *Tracker) Snapshot() Progress {
	if t == nil {
		return Progress{}
	}
	current, _ := t.current.Load().(string)
	return Progress{
		Op:          t.op,
		Processed:   t.processed.Load(),
		Total:       t.total.Load(),
		CurrentPath: current,
	}
}

func (t *Tracker) report(force bool) {
	if t.fn == nil {
		return
	}

	now := time.Now().UnixMilli()
	if !force {
		last := t.last.Load()
		if now-last < progressInterval.Milliseconds() {
			return
		}
		if !t.last.CompareAndSwap(last, now) {
			return // Another goroutine is reporting.
		}
	} else {
		t.last.Store(now)
	}

	t.fn(t.Snapshot())
}

// FormatSize converts a size in bytes to a human-readable string using
// binary (IEC) units.
//
// Examples:
//   - FormatSize(0) returns "0 B"
//   - FormatSize(1536*1024) returns "1.5 MiB"
func FormatSize(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}

// sizePattern matches size strings like "100M", "2G", "500K", "1.5GB".
var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?(?:i?B)?)\s*$`)

// Errors returned by ParseSize.
var (
	ErrInvalidSize  = errors.New("invalid size format")
	ErrNegativeSize = errors.New("size cannot be negative")
)

// ParseSize parses a human-readable size such as "512", "64K", "10MB" or
// "1.5GiB" into bytes. Units are binary regardless of the "i".
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeSize
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	suffix := strings.ToUpper(matches[2])
	suffix = strings.TrimSuffix(suffix, "IB")
	suffix = strings.TrimSuffix(suffix, "B")

	var multiplier int64
	switch suffix {
	case "":
		multiplier = 1
	case "K":
		multiplier = KiB
	case "M":
		multiplier = MiB
	case "G":
		multiplier = GiB
	case "T":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: unknown suffix %q", ErrInvalidSize, suffix)
	}
	return int64(value * float64(multiplier)), nil
}
