package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// PrettyFormatter formats the report with colors and boxes for terminal
// display.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")

	sections := 0
	if len(r.Entries) > 0 {
		w.WriteString(f.formatEntries(r))
		sections++
	}
	if len(r.Mismatches) > 0 {
		w.WriteString(f.formatMismatches(r))
		w.WriteString("\n")
		sections++
	}
	if len(r.Temps) > 0 {
		w.WriteString(f.formatTemps(r))
		sections++
	}
	if r.Optimise != nil {
		w.WriteString(f.formatOptimise(r.Optimise))
		sections++
	}
	if sections == 0 {
		w.WriteString(MutedStyle.Render("  Nothing to report"))
		w.WriteString("\n")
	}

	w.WriteString(f.formatFooter(r))
	w.WriteString("\n")

	if len(r.Warnings) > 0 {
		w.WriteString(f.formatWarnings(r.Warnings))
	}
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Report) string {
	parts := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Store:"), ValueStyle.Render(r.Root)),
	}
	if r.Command != "" {
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Command:"), TitleStyle.Render(r.Command)))
	}
	return HeaderBox.Render(strings.Join(parts, "  "))
}

func (f *PrettyFormatter) formatEntries(r *Report) string {
	var sb strings.Builder

	width := 8
	for _, e := range r.Entries {
		width = max(width, len(e.SizeHuman))
	}

	sb.WriteString(fmt.Sprintf("  %s  %s\n",
		TableHeaderStyle.Render(padLeft("SIZE", width)), TableHeaderStyle.Render("ID")))
	for _, e := range r.Entries {
		sb.WriteString(fmt.Sprintf("  %s  %s\n",
			SizeStyle.Render(padLeft(e.SizeHuman, width)), IDStyle.Render(e.ID)))
	}
	return sb.String()
}

func (f *PrettyFormatter) formatMismatches(r *Report) string {
	lines := []string{ErrorStyle.Bold(true).Render(fmt.Sprintf("%d damaged %s", len(r.Mismatches), plural(len(r.Mismatches), "entry", "entries")))}
	for _, m := range r.Mismatches {
		lines = append(lines,
			ValueStyle.Render(m.Path),
			fmt.Sprintf("  %s %s", LabelStyle.Render("expected"), m.Expected),
			fmt.Sprintf("  %s   %s", LabelStyle.Render("actual"), ErrorStyle.Render(m.actualOrError())),
		)
	}
	return ErrorBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatTemps(r *Report) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  %s  %s\n",
		TableHeaderStyle.Render(padLeft("AGE", 8)), TableHeaderStyle.Render("TEMPORARY DIRECTORY")))
	for _, t := range r.Temps {
		sb.WriteString(fmt.Sprintf("  %s  %s\n",
			WarningStyle.Render(padLeft(formatDuration(t.Age), 8)), ValueStyle.Render(t.Path)))
	}
	return sb.String()
}

func (f *PrettyFormatter) formatOptimise(s *OptimiseStats) string {
	saved := SuccessStyle.Render(humanize.IBytes(uint64(max(s.BytesSaved, 0))))
	line := fmt.Sprintf("  %s %s  %s %d  %s %d\n",
		LabelStyle.Render("Saved:"), saved,
		LabelStyle.Render("Linked:"), s.Linked,
		LabelStyle.Render("Skipped:"), s.Skipped)
	return line
}

func (f *PrettyFormatter) formatFooter(r *Report) string {
	var parts []string

	if len(r.Entries) > 0 {
		parts = append(parts,
			fmt.Sprintf("%s %s", LabelStyle.Render("Entries:"), ValueStyle.Render(fmt.Sprintf("%d", len(r.Entries)))),
			fmt.Sprintf("%s %s", LabelStyle.Render("Total:"), SizeStyle.Render(humanize.IBytes(uint64(r.TotalSize())))),
		)
	}

	switch {
	case r.Command == "audit" && len(r.Mismatches) == 0:
		parts = append(parts, SuccessStyle.Render("store is consistent"))
	case len(r.Mismatches) > 0:
		parts = append(parts, ErrorStyle.Render(fmt.Sprintf("%d mismatched", len(r.Mismatches))))
	}

	if r.Duration > 0 {
		parts = append(parts, MutedStyle.Render("in "+formatDuration(r.Duration)))
	}
	if len(parts) == 0 {
		parts = append(parts, MutedStyle.Render("Use -o plain for unformatted output"))
	}
	return FooterBox.Render(strings.Join(parts, "  "))
}

func (f *PrettyFormatter) formatWarnings(warnings []string) string {
	var sb strings.Builder
	sb.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
	sb.WriteString("\n")
	for _, warning := range warnings {
		sb.WriteString(WarningStyle.Render("  " + warning))
		sb.WriteString("\n")
	}
	return sb.String()
}

// padLeft pads s with spaces on the left to width.
func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
