package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/jamesainslie/implstore/pkg/implstore/filter"
	"github.com/jamesainslie/implstore/pkg/implstore/manifest"
	"github.com/jamesainslie/implstore/pkg/implstore/output"
	"github.com/jamesainslie/implstore/pkg/implstore/types"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list [PATTERN...]",
	Aliases: []string{"ls"},
	Short:   "List implementations in the store",
	Long: `List committed entries. With PATTERNs, only IDs matching at least one
glob are shown.

Examples:
  implstore list
  implstore list 'sha256new=*'
  implstore list 'sha1=ab*' 'sha1new=ab*' -o ids
  implstore list --sort size -r -n 10
  implstore list --older-than 90d --format sha1,sha1new`,
	RunE: runList,
}

var listTempCmd = &cobra.Command{
	Use:   "list-temp",
	Short: "List staging and other non-entry directories",
	Long: `List directories under the store root that are not committed entries,
such as staging trees left behind by an interrupted add.`,
	Args: cobra.NoArgs,
	RunE: runListTemp,
}

func init() {
	listCmd.Flags().StringSlice("exclude", nil, "drop IDs matching these globs")
	listCmd.Flags().StringSlice("format", nil, "only these manifest formats")
	listCmd.Flags().String("min-size", "", "minimum entry size (e.g. 10M, 1G)")
	listCmd.Flags().String("older-than", "", "only entries committed before this long ago (e.g. 30d, 2w)")
	listCmd.Flags().String("newer-than", "", "only entries committed within this long (e.g. 24h, 7d)")
	listCmd.Flags().String("sort", "id", "sort by: id, size, age")
	listCmd.Flags().BoolP("reverse", "r", false, "reverse the sort order")
	listCmd.Flags().IntP("limit", "n", 0, "maximum entries to show (0 = all)")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(listTempCmd)
}

// listFilter builds the entry filter from the positional patterns and the
// list flags.
func listFilter(cmd *cobra.Command, patterns []string) (*filter.Filter, error) {
	opts := []filter.Option{filter.WithInclude(patterns...)}

	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	opts = append(opts, filter.WithExclude(exclude...))

	names, _ := cmd.Flags().GetStringSlice("format")
	formats := make([]manifest.Format, 0, len(names))
	for _, name := range names {
		format, err := manifest.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		formats = append(formats, format)
	}
	opts = append(opts, filter.WithFormats(formats...))

	if v, _ := cmd.Flags().GetString("min-size"); v != "" {
		size, err := types.ParseSize(v)
		if err != nil {
			return nil, fmt.Errorf("--min-size: %w", err)
		}
		opts = append(opts, filter.WithMinSize(size))
	}
	for _, flag := range []struct {
		name string
		opt  func(time.Duration) filter.Option
	}{
		{"older-than", filter.WithOlderThan},
		{"newer-than", filter.WithNewerThan},
	} {
		if v, _ := cmd.Flags().GetString(flag.name); v != "" {
			d, err := filter.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("--%s: %w", flag.name, err)
			}
			opts = append(opts, flag.opt(d))
		}
	}

	sortName, _ := cmd.Flags().GetString("sort")
	sortBy, err := filter.ParseSortField(sortName)
	if err != nil {
		return nil, err
	}
	reverse, _ := cmd.Flags().GetBool("reverse")
	limit, _ := cmd.Flags().GetInt("limit")
	opts = append(opts, filter.WithSortBy(sortBy), filter.WithSortDescending(reverse), filter.WithLimit(limit))

	return filter.New(opts...)
}

// runList lists committed entries.
func runList(cmd *cobra.Command, args []string) error {
	f, err := listFilter(cmd, args)
	if err != nil {
		return err
	}
	_, s, err := withStore()
	if err != nil {
		return err
	}

	start := time.Now()
	digests, err := s.ListAll()
	if err != nil {
		return err
	}

	report := &output.Report{Command: "list", Root: s.Root()}
	entries := make([]output.Entry, 0, len(digests))
	for _, d := range digests {
		entry, err := describeEntry(s, d)
		if err != nil {
			report.Warnings = append(report.Warnings, err.Error())
			continue
		}
		entries = append(entries, entry)
	}
	report.Entries = f.Apply(entries)
	report.Duration = time.Since(start)
	return render(cmd, report)
}

// runListTemp lists non-entry directories with their age.
func runListTemp(cmd *cobra.Command, _ []string) error {
	_, s, err := withStore()
	if err != nil {
		return err
	}

	start := time.Now()
	temps, err := s.ListAllTemp()
	if err != nil {
		return err
	}
	report := &output.Report{Command: "list-temp", Root: s.Root()}
	report.Temps = describeTemps(temps, start)
	report.Duration = time.Since(start)
	return render(cmd, report)
}

// describeTemps stats each path. Paths that vanished are skipped.
func describeTemps(paths []string, now time.Time) []output.TempDir {
	temps := make([]output.TempDir, 0, len(paths))
	for _, p := range paths {
		info, err := os.Lstat(p)
		if err != nil {
			continue
		}
		temps = append(temps, output.TempDir{
			Path:    p,
			ModTime: info.ModTime(),
			Age:     now.Sub(info.ModTime()).Round(time.Second),
		})
	}
	sort.Slice(temps, func(i, j int) bool { return temps[i].Path < temps[j].Path })
	return temps
}
