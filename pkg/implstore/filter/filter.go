package filter

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/gobwas/glob"
	"github.com/jamesainslie/implstore/pkg/implstore/manifest"
	"github.com/jamesainslie/implstore/pkg/implstore/output"
)

// Filter defines criteria for selecting, sorting and limiting entries.
type Filter struct {
	// Include contains ID glob patterns. If non-empty, an entry's ID must
	// match at least one.
	Include []string

	// Exclude contains ID glob patterns. Matching entries are dropped.
	Exclude []string

	// Formats restricts entries to these manifest formats.
	Formats []manifest.Format

	// MinSize drops entries whose recorded size is smaller.
	MinSize int64

	// OlderThan drops entries committed more recently than this long ago.
	OlderThan time.Duration

	// NewerThan drops entries committed longer ago than this.
	NewerThan time.Duration

	// SortBy specifies the field to sort results by.
	SortBy SortField

	// SortDescending reverses the sort.
	SortDescending bool

	// Limit is the maximum number of entries to return. 0 means unlimited.
	Limit int

	include []glob.Glob
	exclude []glob.Glob
	now     func() time.Time
}

// Option is a functional option for configuring a Filter.
type Option func(*Filter)

// New builds a Filter. It fails if a glob pattern does not compile.
// The zero configuration keeps every entry, sorted by ID.
func New(opts ...Option) (*Filter, error) {
	f := &Filter{SortBy: SortID, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}

	var err error
	if f.include, err = compile(f.Include); err != nil {
		return nil, err
	}
	if f.exclude, err = compile(f.Exclude); err != nil {
		return nil, err
	}
	return f, nil
}

func compile(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// WithInclude sets the include glob patterns.
func WithInclude(patterns ...string) Option {
	return func(f *Filter) {
		f.Include = patterns
	}
}

// WithExclude sets the exclude glob patterns.
func WithExclude(patterns ...string) Option {
	return func(f *Filter) {
		f.Exclude = patterns
	}
}

// WithFormats restricts matches to the given manifest formats.
func WithFormats(formats ...manifest.Format) Option {
	return func(f *Filter) {
		f.Formats = formats
	}
}

// WithMinSize sets the minimum recorded size. Negative values mean 0.
func WithMinSize(minSize int64) Option {
	return func(f *Filter) {
		f.MinSize = max(minSize, 0)
	}
}

// WithOlderThan sets the minimum entry age.
func WithOlderThan(d time.Duration) Option {
	return func(f *Filter) {
		f.OlderThan = d
	}
}

// WithNewerThan sets the maximum entry age.
func WithNewerThan(d time.Duration) Option {
	return func(f *Filter) {
		f.NewerThan = d
	}
}

// WithSortBy sets the field to sort results by.
func WithSortBy(field SortField) Option {
	return func(f *Filter) {
		f.SortBy = field
	}
}

// WithSortDescending sets whether to sort in descending order.
func WithSortDescending(desc bool) Option {
	return func(f *Filter) {
		f.SortDescending = desc
	}
}

// WithLimit sets the maximum number of entries. Negative values mean 0.
func WithLimit(limit int) Option {
	return func(f *Filter) {
		f.Limit = max(limit, 0)
	}
}

// Match reports whether e passes every criterion.
func (f *Filter) Match(e output.Entry) bool {
	return f.matchFormat(e) && f.matchSize(e) && f.matchAge(e) && f.matchPatterns(e.ID)
}

func (f *Filter) matchFormat(e output.Entry) bool {
	if len(f.Formats) == 0 {
		return true
	}
	format, _ := e.Digest.Best()
	return slices.Contains(f.Formats, format)
}

func (f *Filter) matchSize(e output.Entry) bool {
	return f.MinSize <= 0 || e.Size >= f.MinSize
}

func (f *Filter) matchAge(e output.Entry) bool {
	now := f.now()
	if f.OlderThan > 0 && e.ModTime.After(now.Add(-f.OlderThan)) {
		return false
	}
	if f.NewerThan > 0 && e.ModTime.Before(now.Add(-f.NewerThan)) {
		return false
	}
	return true
}

func (f *Filter) matchPatterns(id string) bool {
	if matchesAny(f.exclude, id) {
		return false
	}
	return len(f.include) == 0 || matchesAny(f.include, id)
}

func matchesAny(globs []glob.Glob, id string) bool {
	for _, g := range globs {
		if g.Match(id) {
			return true
		}
	}
	return false
}

// Sort returns a sorted copy of entries. Ties are broken by ID so the order
// is stable across runs.
func (f *Filter) Sort(entries []output.Entry) []output.Entry {
	sorted := slices.Clone(entries)
	if sorted == nil {
		sorted = []output.Entry{}
	}

	slices.SortFunc(sorted, func(a, b output.Entry) int {
		var result int
		switch f.SortBy {
		case SortSize:
			result = cmp.Compare(a.Size, b.Size)
		case SortAge:
			// Older entries have the larger age.
			result = -a.ModTime.Compare(b.ModTime)
		}
		if result == 0 {
			result = cmp.Compare(a.ID, b.ID)
		}
		if f.SortDescending {
			return -result
		}
		return result
	})
	return sorted
}

// Apply runs Match, Sort and Limit.
func (f *Filter) Apply(entries []output.Entry) []output.Entry {
	var matched []output.Entry
	for _, e := range entries {
		if f.Match(e) {
			matched = append(matched, e)
		}
	}

	sorted := f.Sort(matched)
	if f.Limit > 0 && len(sorted) > f.Limit {
		return sorted[:f.Limit]
	}
	return sorted
}
