package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
)

// Steps renders the steps that follow a migration (log archive,
// notifications) as numbered lines. On a terminal a braille spinner runs
// while a step works; piped output gets each line once, when the step ends.
type Steps struct {
	w           io.Writer
	total       int
	n           int
	interactive bool
	s           *spinner.Spinner
}

// NewSteps prepares total steps written to w.
func NewSteps(w io.Writer, total int, interactive bool) *Steps {
	return &Steps{w: w, total: total, interactive: interactive}
}

// Run runs fn as the next step. A failed step shows its error after the
// cross and the error is returned.
func (st *Steps) Run(name string, fn func() error) error {
	st.n++
	label := fmt.Sprintf("[%d/%d] %s", st.n, st.total, name)
	if st.interactive {
		st.s = spinner.New(spinner.CharSets[14], 80*time.Millisecond, spinner.WithWriter(st.w))
		st.s.Prefix = "  "
		st.s.Suffix = " " + label
		st.s.Start()
	}
	err := fn()
	st.Stop()
	if err != nil {
		fmt.Fprintf(st.w, "\r  %s %s %v\n", label, StyleError.Render(SymbolCross), err)
		return err
	}
	fmt.Fprintf(st.w, "\r  %s %s\n", label, StyleSuccess.Render(SymbolCheck))
	return nil
}

// Stop halts a running spinner without printing a result.
func (st *Steps) Stop() {
	if st.s != nil {
		st.s.Stop()
		st.s = nil
	}
}
