// Package console prints the human-readable progress lines of a run.
package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
)

// Console writes progress to Out and problems to Err. Colors are dropped
// when stdout is not a terminal or NO_COLOR is set.
type Console struct {
	out io.Writer
	err io.Writer

	count *color.Color
	fail  *color.Color
	warn  *color.Color
	info  *color.Color
}

// New returns a Console. Nil writers default to stdout and stderr.
func New(out, errOut io.Writer, noColor bool) *Console {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	c := &Console{
		out:   out,
		err:   errOut,
		count: color.New(color.FgGreen),
		fail:  color.New(color.FgRed, color.Bold),
		warn:  color.New(color.FgYellow),
		info:  color.New(color.FgCyan),
	}
	if noColor || color.NoColor {
		for _, col := range []*color.Color{c.count, c.fail, c.warn, c.info} {
			col.DisableColor()
		}
	}
	return c
}

// Discard returns a Console that prints nothing.
func Discard() *Console {
	return New(io.Discard, io.Discard, true)
}

// Out is where echoed records go.
func (c *Console) Out() io.Writer { return c.out }

// Count reports how many records a query produced.
func (c *Console) Count(query string, n int) {
	fmt.Fprintf(c.out, "\nNumber of results found for query '%s': %s\n\n", query, c.count.Sprint(n))
}

// Saved reports the output path at the end of a run.
func (c *Console) Saved(path string) {
	fmt.Fprintf(c.out, "Results saved to %s\n", c.info.Sprint(path))
}

// Cooldown announces a failure pause.
func (c *Console) Cooldown(d time.Duration) {
	fmt.Fprintln(c.err, c.warn.Sprintf("Waiting %s before trying another...", d.Round(time.Second)))
}

// Errorf prints a failure message prefixed with "Error: ".
func (c *Console) Errorf(format string, args ...any) {
	fmt.Fprintln(c.err, c.fail.Sprint("Error: ")+fmt.Sprintf(format, args...))
}
