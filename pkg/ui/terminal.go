package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

const (
	ansiCyan    = "\033[36m%s\033[0m"
	ansiYellow  = "\033[33m%s\033[0m"
	ansiRed     = "\033[31m%s\033[0m"
	ansiGreen   = "\033[32m%s\033[0m"
	ansiMagenta = "\033[35m%s\033[0m"
	ansiDim     = "\033[2m%s\033[0m"
)

// Printer writes user facing lines, colored only when out is a terminal
type Printer struct {
	out   io.Writer
	color bool
}

// NewPrinter creates a Printer on out. Colors are used when out is a
// terminal and noColor is false.
func NewPrinter(out io.Writer, noColor bool) *Printer {
	return &Printer{out: out, color: !noColor && IsTerminal(out)}
}

// IsTerminal reports whether w is a file attached to a terminal
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func (p *Printer) paint(format, text string) string {
	if !p.color {
		return text
	}
	return fmt.Sprintf(format, text)
}

// Error prints an error message in red
func (p *Printer) Error(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	fmt.Fprintln(p.out, p.paint(ansiRed, msg))
}

// Success prints a success message in green
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.out, p.paint(ansiGreen, msg))
}

// Info prints a label and value
func (p *Printer) Info(label string, value string) {
	fmt.Fprintf(p.out, "%s: %s\n", p.paint(ansiCyan, label), p.paint(ansiYellow, value))
}

// Warning prints a warning message in yellow
func (p *Printer) Warning(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	fmt.Fprintln(p.out, p.paint(ansiYellow, msg))
}

// Highlight prints a heading in magenta
func (p *Printer) Highlight(msg string) {
	fmt.Fprintln(p.out, p.paint(ansiMagenta, msg))
}

// Line prints msg unstyled
func (p *Printer) Line(msg string) {
	fmt.Fprintln(p.out, msg)
}

// Schedule prints the wait before each retry and the worst case total
func (p *Printer) Schedule(delays []time.Duration, total time.Duration) {
	if len(delays) == 0 {
		fmt.Fprintln(p.out, p.paint(ansiDim, "  no retries"))
		return
	}
	for i, d := range delays {
		fmt.Fprintf(p.out, "  retry %2d after %s\n", i+1, d)
	}
	fmt.Fprintf(p.out, "  %s\n", p.paint(ansiDim, fmt.Sprintf("worst case total wait %s", total)))
}
