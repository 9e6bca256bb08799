package output

import (
	"bytes"
	"encoding/json"
)

// JSONFormatter formats the report as a single indented JSON object.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(newDocument(r))
}

// document is the shared JSON and YAML shape. Durations are rendered as
// strings so both encodings read the same.
type document struct {
	Command    string         `json:"command" yaml:"command"`
	Root       string         `json:"root" yaml:"root"`
	Entries    []Entry        `json:"entries" yaml:"entries"`
	Mismatches []Mismatch     `json:"mismatches,omitempty" yaml:"mismatches,omitempty"`
	Temps      []tempDoc      `json:"temps,omitempty" yaml:"temps,omitempty"`
	Optimise   *OptimiseStats `json:"optimise,omitempty" yaml:"optimise,omitempty"`
	TotalSize  int64          `json:"total_size" yaml:"total_size"`
	Duration   string         `json:"duration,omitempty" yaml:"duration,omitempty"`
	Warnings   []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

type tempDoc struct {
	Path string `json:"path" yaml:"path"`
	Age  string `json:"age" yaml:"age"`
}

func newDocument(r *Report) document {
	entries := r.Entries
	if entries == nil {
		entries = []Entry{}
	}
	temps := make([]tempDoc, len(r.Temps))
	for i, t := range r.Temps {
		temps[i] = tempDoc{Path: t.Path, Age: formatDuration(t.Age)}
	}

	doc := document{
		Command:    r.Command,
		Root:       r.Root,
		Entries:    entries,
		Mismatches: r.Mismatches,
		Temps:      temps,
		Optimise:   r.Optimise,
		TotalSize:  r.TotalSize(),
		Warnings:   r.Warnings,
	}
	if r.Duration > 0 {
		doc.Duration = r.Duration.String()
	}
	return doc
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

// Ensure JSONFormatter implements Formatter.
var _ Formatter = (*JSONFormatter)(nil)
