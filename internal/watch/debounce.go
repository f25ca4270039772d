package watch

import (
	"sync"
	"time"
)

// dedupKey is what "identical entries within a batch" dedups on: spec
// §4.7 names the pair (relative-path, kind).
type dedupKey struct {
	relPath string
	kind    ChangeKind
}

// Batch is one coalesced set of FileChange events, emitted after the
// debouncer's quiet period elapses.
type Batch struct {
	Changes []FileChange
}

// Debouncer accepts FileChange events and emits a Batch once Quiet has
// elapsed since the last event, deduplicating identical
// (relative-path, kind) entries within the batch (spec §4.7
// "Debouncer").
type Debouncer struct {
	quiet time.Duration
	out   chan<- Batch

	mu           sync.Mutex
	pending      map[dedupKey]FileChange
	order        []dedupKey
	timer        *time.Timer
	isDebouncing bool
}

// DefaultQuiet is the default debounce quiet period spec §4.7 names.
const DefaultQuiet = 500 * time.Millisecond

// NewDebouncer creates a Debouncer. quiet <= 0 uses DefaultQuiet. out is
// the channel completed batches are sent to; the caller owns its
// lifetime.
func NewDebouncer(quiet time.Duration, out chan<- Batch) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	return &Debouncer{
		quiet:   quiet,
		out:     out,
		pending: make(map[dedupKey]FileChange),
	}
}

// Add records a change and (re)starts the quiet-period timer.
func (d *Debouncer) Add(c FileChange) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := dedupKey{relPath: c.RelativePath, kind: c.Kind}
	if _, exists := d.pending[key]; !exists {
		d.order = append(d.order, key)
	}
	d.pending[key] = c
	d.isDebouncing = true

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, d.flushLocked)
}

// Flush immediately emits whatever is pending, bypassing the remainder
// of the quiet period (spec §4.7 "immediate-flush operation").
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.flushLocked()
}

// flushLocked takes its own lock internally so it can be invoked both
// directly (Flush) and from the AfterFunc timer callback.
func (d *Debouncer) flushLocked() {
	d.mu.Lock()
	if len(d.order) == 0 {
		d.isDebouncing = false
		d.mu.Unlock()
		return
	}
	changes := make([]FileChange, 0, len(d.order))
	for _, k := range d.order {
		changes = append(changes, d.pending[k])
	}
	d.pending = make(map[dedupKey]FileChange)
	d.order = nil
	d.isDebouncing = false
	d.mu.Unlock()

	d.out <- Batch{Changes: changes}
}

// QueueLength reports how many distinct entries are currently pending,
// for observability (spec §4.7 "Queue length... observable").
func (d *Debouncer) QueueLength() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}

// IsDebouncing reports whether a quiet-period timer is currently armed.
func (d *Debouncer) IsDebouncing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isDebouncing
}
