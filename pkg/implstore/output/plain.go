package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
)

// PlainFormatter formats the report as tab-aligned tables without colors,
// one table per non-empty section.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	if len(r.Entries) > 0 {
		fmt.Fprintln(tw, "ID\tSIZE\tPATH")
		for _, e := range r.Entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.ID, e.SizeHuman, e.Path)
		}
	}

	if len(r.Mismatches) > 0 {
		fmt.Fprintln(tw, "MISMATCH\tEXPECTED\tACTUAL")
		for _, m := range r.Mismatches {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Path, m.Expected, m.actualOrError())
		}
	}

	if len(r.Temps) > 0 {
		fmt.Fprintln(tw, "TEMP\tAGE")
		for _, t := range r.Temps {
			fmt.Fprintf(tw, "%s\t%s\n", t.Path, formatDuration(t.Age))
		}
	}

	if r.Optimise != nil {
		fmt.Fprintf(tw, "saved\t%d\tbytes\n", r.Optimise.BytesSaved)
		fmt.Fprintf(tw, "linked\t%d\tfiles\n", r.Optimise.Linked)
		fmt.Fprintf(tw, "skipped\t%d\tfiles\n", r.Optimise.Skipped)
	}

	return tw.Flush()
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)
