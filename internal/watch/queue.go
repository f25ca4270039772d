package watch

import (
	"context"
	"sync"
)

// Action runs one submission's batch to completion. The context is
// cancelled if a newer submission supersedes this one while it runs, or
// if the caller cancels the whole queue.
type Action func(ctx context.Context, batch Batch) error

// Submission pairs a batch with the action that should process it.
type Submission struct {
	Batch  Batch
	Action Action
	// Initial marks the startup-triggered run spec §4.7 says the UI
	// should label distinctly from subsequent file-triggered runs.
	Initial bool
}

// RunOutcome reports how one submission's action completed.
type RunOutcome struct {
	Submission Submission
	Err        error
	Cancelled  bool
}

// Queue guarantees at most one Action runs at a time. A submission that
// arrives while one is running replaces any not-yet-started pending
// submission; only the latest is retained (spec §4.7 "Execution
// queue").
type Queue struct {
	parent context.Context

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	pending   *Submission
	results   chan<- RunOutcome
}

// NewQueue creates a Queue whose actions run under derivations of
// parent. results receives one RunOutcome per completed (or cancelled)
// submission; the caller owns its lifetime.
func NewQueue(parent context.Context, results chan<- RunOutcome) *Queue {
	return &Queue{parent: parent, results: results}
}

// Submit enqueues s. If nothing is running, s starts immediately.
// Otherwise s replaces whatever was pending (spec: "only the latest
// submission is retained").
func (q *Queue) Submit(s Submission) {
	q.mu.Lock()
	if !q.running {
		q.running = true
		ctx, cancel := context.WithCancel(q.parent)
		q.cancel = cancel
		q.mu.Unlock()
		go q.run(ctx, s)
		return
	}
	q.pending = &s
	q.mu.Unlock()
}

// CancelRunning cancels whatever action is currently executing, if any.
// The queue reports that submission's completion as unsuccessful (spec
// §4.7 "Cancellation... queue reports the completion as unsuccessful").
func (q *Queue) CancelRunning() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		q.cancel()
	}
}

// IsRunning reports whether an action is currently executing.
func (q *Queue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

func (q *Queue) run(ctx context.Context, s Submission) {
	err := s.Action(ctx, s.Batch)
	cancelled := ctx.Err() != nil

	q.mu.Lock()
	q.running = false
	q.cancel = nil
	next := q.pending
	q.pending = nil
	q.mu.Unlock()

	if q.results != nil {
		q.results <- RunOutcome{Submission: s, Err: err, Cancelled: cancelled}
	}

	if next != nil {
		q.Submit(*next)
	}
}
