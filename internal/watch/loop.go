package watch

import (
	"context"
	"log/slog"
	"time"
)

// RunFunc executes one batch of changes and reports success. Cancelling
// ctx must make RunFunc return promptly; it is wired to the step
// scheduler's own cancellation token in production use.
type RunFunc func(ctx context.Context, batch Batch) error

// Loop wires the Watcher, Debouncer and Queue together, implementing
// spec §4.7's user-visible contract: rapid saves collapse into one run,
// the most recent run's output is always what's shown, and any run can
// be cancelled. The very first run is submitted at startup and marked
// Initial so the UI can label it distinctly from file-triggered runs.
type Loop struct {
	Root     string
	Quiet    time.Duration
	Excludes []string
	Run      RunFunc

	watcher   *Watcher
	debouncer *Debouncer
	queue     *Queue

	Outcomes <-chan RunOutcome
}

// Start builds the watcher/debouncer/queue pipeline, submits the
// initial run, and begins watching. It blocks until ctx is cancelled or
// the underlying watcher returns an error.
func (l *Loop) Start(ctx context.Context) error {
	events := make(chan FileChange, 256)
	batches := make(chan Batch, 8)
	outcomes := make(chan RunOutcome, 8)
	l.Outcomes = outcomes

	w, err := New(l.Root, Options{Excludes: l.Excludes, Events: events})
	if err != nil {
		return err
	}
	l.watcher = w
	l.debouncer = NewDebouncer(l.Quiet, batches)
	l.queue = NewQueue(ctx, outcomes)

	go func() {
		for ev := range events {
			l.debouncer.Add(ev)
		}
	}()

	go func() {
		for batch := range batches {
			l.queue.Submit(Submission{Batch: batch, Action: Action(l.Run)})
		}
	}()

	l.queue.Submit(Submission{Batch: Batch{}, Action: Action(l.Run), Initial: true})

	if err := l.watcher.Run(ctx); err != nil {
		slog.Warn("watch loop stopped", "error", err)
		return err
	}
	return nil
}

// Cancel cancels whatever submission is currently running, per spec
// §4.7's explicit user-cancellation path.
func (l *Loop) Cancel() {
	if l.queue != nil {
		l.queue.CancelRunning()
	}
}
