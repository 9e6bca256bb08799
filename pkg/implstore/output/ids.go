package output

import "bytes"

// IDsFormatter writes one identifier per line: entry IDs, then the paths of
// mismatched entries and temporary directories. It suits shell pipelines
// such as "implstore list -o ids | xargs -n1 implstore verify".
type IDsFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *IDsFormatter) Format(w *bytes.Buffer, r *Report) error {
	for _, e := range r.Entries {
		w.WriteString(e.ID)
		w.WriteByte('\n')
	}
	for _, m := range r.Mismatches {
		w.WriteString(m.Path)
		w.WriteByte('\n')
	}
	for _, t := range r.Temps {
		w.WriteString(t.Path)
		w.WriteByte('\n')
	}
	return nil
}

func init() {
	Register("ids", func() Formatter {
		return &IDsFormatter{}
	})
}

// Ensure IDsFormatter implements Formatter.
var _ Formatter = (*IDsFormatter)(nil)
