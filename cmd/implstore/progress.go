package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/jamesainslie/implstore/pkg/implstore/types"
	"github.com/mattn/go-isatty"
)

// progressLine redraws a single status line on a terminal.
type progressLine struct {
	mu    sync.Mutex
	w     io.Writer
	width int
}

// newProgress returns a progress sink for stderr, or nil when stderr is not
// a terminal or output is quiet.
func newProgress() (types.ProgressFunc, func()) {
	if getQuiet() || !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil, func() {}
	}
	p := &progressLine{w: os.Stderr}
	return p.report, p.clear
}

func (p *progressLine) report(pr types.Progress) {
	var line string
	if pr.Total > 0 {
		line = fmt.Sprintf("%-8s %s / %s (%3.0f%%)", pr.Op,
			types.FormatSize(pr.Processed), types.FormatSize(pr.Total), pr.Fraction()*100)
	} else {
		line = fmt.Sprintf("%-8s %s", pr.Op, types.FormatSize(pr.Processed))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	pad := max(p.width-len(line), 0)
	fmt.Fprintf(p.w, "\r%s%*s", line, pad, "")
	p.width = len(line)
}

// clear erases the status line.
func (p *progressLine) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.width > 0 {
		fmt.Fprintf(p.w, "\r%*s\r", p.width, "")
		p.width = 0
	}
}
