// Package ui contains terminal output helpers shared by the runner and CLI.
// It deliberately stops at formatting primitives: rendering a full TUI is
// out of scope for the core (see Non-goals).
package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// IsTTY reports whether stdout is attached to an interactive terminal.
var IsTTY = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

var (
	bold    = color.New(color.Bold)
	dimming = color.New(color.Faint)
	red     = color.New(color.FgRed, color.Bold)
	green   = color.New(color.FgGreen, color.Bold)
	yellow  = color.New(color.FgYellow, color.Bold)
)

// Dim renders a string in low-emphasis styling, used for cache-status annotations.
func Dim(s string) string { return dimming.Sprint(s) }

// Bold renders a string with emphasis, used for task id headers.
func Bold(s string) string { return bold.Sprint(s) }

// Error renders a string as an error.
func Error(s string) string { return red.Sprint(s) }

// Ok renders a string as a success.
func Ok(s string) string { return green.Sprint(s) }

// Warn renders a string as a warning.
func Warn(s string) string { return yellow.Sprint(s) }

// Output is a concurrency-safe sink for interleaved writes from multiple
// in-flight tasks. Each call to Write is a single atomic append so lines
// from different tasks are never torn mid-write.
type Output struct {
	mu sync.Mutex
	w  io.Writer
}

// NewOutput wraps an underlying writer (normally os.Stdout) for safe
// concurrent use by the runner's worker goroutines.
func NewOutput(w io.Writer) *Output {
	return &Output{w: w}
}

// Default returns an Output writing to the process's stdout.
func Default() *Output {
	return NewOutput(os.Stdout)
}

// Printf writes a formatted, newline-terminated line.
func (o *Output) Printf(format string, args ...interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.w, format+"\n", args...)
}

// Write implements io.Writer so Output can back a prefixed or logstreamer writer.
func (o *Output) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.w.Write(p)
}
