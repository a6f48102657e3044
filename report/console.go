// Package report prints human-readable progress for a run.
package report

import (
	"fmt"
	"io"
	"sync"

	"github.com/miladsoleymani/mqrequest/core"
)

// Console writes progress to w. Progress overwrites a single line.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	onLine bool
}

// NewConsole returns a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Progress(delivered int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "\r%d Replies received", delivered)
	c.onLine = true
}

func (c *Console) Terminated(iteration int, out core.Outcome, delivered int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLine()
	switch out.Kind {
	case core.OutcomeTimeout:
		fmt.Fprintf(c.w, "timed out waiting for requested reply: Code %d\n", int(out.Reason))
	case core.OutcomeSubmitError:
		fmt.Fprintf(c.w, "put ended with reason code %d\n", int(out.Reason))
	case core.OutcomeStopped:
		fmt.Fprintf(c.w, "stopped before iteration %d\n", iteration)
	default:
		fmt.Fprintf(c.w, "get returned code: %d\n", int(out.Reason))
	}
	fmt.Fprintf(c.w, "%d Replies received\n", delivered)
}

// Complete ends a pending progress line.
func (c *Console) Complete(core.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLine()
}

// Printf writes one line.
func (c *Console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLine()
	fmt.Fprintf(c.w, format+"\n", args...)
}

// Done prints the final line of a run.
func (c *Console) Done() {
	c.Printf("Processing complete")
}

func (c *Console) endLine() {
	if c.onLine {
		fmt.Fprintln(c.w)
		c.onLine = false
	}
}
