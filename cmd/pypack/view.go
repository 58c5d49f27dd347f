package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kballard/go-shellquote"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/pypackstudio/pypack/internal/logging"
	"github.com/pypackstudio/pypack/internal/process"
)

// buildView renders a build on the terminal: tool output on stdout and, when
// stderr is a terminal, a spinner that counts output lines.
type buildView struct {
	out   io.Writer
	bar   *progressbar.ProgressBar
	quiet bool
}

func newBuildView(quiet bool, prefix string) *buildView {
	v := &buildView{out: os.Stdout, quiet: quiet}
	if prefix != "" {
		v.out = logging.NewPrefixWriter(prefix, os.Stdout)
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		v.bar = progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("building"),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionShowCount(),
			progressbar.OptionSetElapsedTime(true),
			progressbar.OptionClearOnFinish(),
		)
	}
	return v
}

func (v *buildView) handle(ev process.Event) {
	switch ev.Kind {
	case process.EventStarted:
		v.note(colArrow.Sprint("$ ") + shellquote.Join(ev.Command...))
	case process.EventLine:
		if !v.quiet {
			v.note(ev.Text)
		}
		if v.bar != nil {
			_ = v.bar.Add(1)
		}
	}
}

// note prints a line above the spinner.
func (v *buildView) note(line string) {
	if v.bar != nil {
		_ = v.bar.Clear()
	}
	fmt.Fprintln(v.out, line)
}

func (v *buildView) done() {
	if v.bar != nil {
		_ = v.bar.Finish()
	}
}
