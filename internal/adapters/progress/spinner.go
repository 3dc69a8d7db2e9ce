package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/trebuchet-org/treb-state/internal/usecase"
)

// SpinnerSink shows spinner events on stderr and prints info and error lines
type SpinnerSink struct {
	mu      sync.Mutex
	spinner *spinner.Spinner
	out     io.Writer
}

// NewSpinnerSink creates a spinner-backed progress sink writing to stderr
func NewSpinnerSink() *SpinnerSink {
	return newSpinnerSink(os.Stderr)
}

func newSpinnerSink(out io.Writer) *SpinnerSink {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
	s.HideCursor = false
	return &SpinnerSink{spinner: s, out: out}
}

// OnProgress handles progress events
func (r *SpinnerSink) OnProgress(_ context.Context, event usecase.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !event.Spinner {
		if r.spinner.Active() {
			r.spinner.Stop()
		}
		return
	}

	suffix := " " + event.Message
	if event.Total > 0 {
		suffix += fmt.Sprintf(" (%d/%d)", event.Current, event.Total)
	}
	r.spinner.Suffix = suffix
	if !r.spinner.Active() {
		r.spinner.Start()
	}
}

// Info prints an info message
func (r *SpinnerSink) Info(message string) {
	r.println(color.New(color.FgCyan), message)
}

// Error prints an error message
func (r *SpinnerSink) Error(message string) {
	r.println(color.New(color.FgRed), message)
}

// println pauses the spinner so the line is not overdrawn
func (r *SpinnerSink) println(c *color.Color, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wasActive := r.spinner.Active()
	if wasActive {
		r.spinner.Stop()
	}
	c.Fprintln(r.out, message)
	if wasActive {
		r.spinner.Start()
	}
}

// MigrationEvent converts coordinator progress into a sink event
func MigrationEvent(p usecase.MigrationProgress) usecase.ProgressEvent {
	event := usecase.ProgressEvent{
		Stage:    string(p.Phase),
		Current:  p.Processed,
		Total:    p.Total,
		Metadata: p,
	}
	switch p.Phase {
	case usecase.PhaseExporting:
		event.Message = "Exporting source records"
		event.Spinner = true
	case usecase.PhaseImporting:
		event.Message = fmt.Sprintf("Importing records %.0f%%", p.Percent())
		event.Spinner = true
	case usecase.PhaseValidating:
		event.Message = "Validating target"
		event.Spinner = true
	case usecase.PhaseDone:
		event.Message = "Migration done"
	case usecase.PhaseFailed:
		event.Message = "Migration failed"
	}
	return event
}

// ForwardMigration returns a coordinator progress callback feeding sink
func ForwardMigration(sink usecase.ProgressSink) func(usecase.MigrationProgress) {
	return func(p usecase.MigrationProgress) {
		sink.OnProgress(context.Background(), MigrationEvent(p))
	}
}

var _ usecase.ProgressSink = (*SpinnerSink)(nil)
