// Package watch implements the watch loop from spec §4.7: a recursive
// file watcher, a debouncer that coalesces rapid changes into batches,
// and an execution queue that guarantees at most one run in flight with
// the latest pending submission superseding any stale one.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// ChangeKind is the closed set of file-change kinds spec §4.7 names.
type ChangeKind int

const (
	Created ChangeKind = iota
	Modified
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	default:
		return "modified"
	}
}

// FileChange is one observed filesystem event, already filtered against
// the exclusion list.
type FileChange struct {
	FullPath     string
	RelativePath string
	Kind         ChangeKind
}

// DefaultExcludes is the glob exclusion list spec §4.7 names as the
// built-in default; callers may append to it via Options.Excludes.
var DefaultExcludes = []string{
	".git/**",
	"node_modules/**",
	".pdk/**",
	"**/*.dll",
	"**/*.exe",
}

// Options configures a Watcher.
type Options struct {
	// Excludes is appended to DefaultExcludes; patterns are matched
	// against the path relative to Root using doublestar semantics.
	Excludes []string
	// Events is the channel FileChange events are delivered on; the
	// caller owns its lifetime. When it is full, emit drops the event
	// rather than block the filesystem notifier goroutine, so a burst
	// larger than its buffer loses events.
	Events chan<- FileChange
}

// Watcher recursively observes Root and emits FileChange events on
// Options.Events, net of the exclusion list (spec §4.7 "File watcher").
type Watcher struct {
	root     string
	excludes []string
	events   chan<- FileChange
	fsw      *fsnotify.Watcher

	warnedMu sync.Mutex
	warned   map[string]bool
}

// New creates a Watcher rooted at root. It does not start watching until
// Run is called.
func New(root string, opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	excludes := make([]string, 0, len(DefaultExcludes)+len(opts.Excludes))
	excludes = append(excludes, DefaultExcludes...)
	excludes = append(excludes, opts.Excludes...)
	return &Watcher{
		root:     filepath.Clean(root),
		excludes: excludes,
		events:   opts.Events,
		fsw:      fsw,
		warned:   make(map[string]bool),
	}, nil
}

// Run adds every directory under the root to the notifier and blocks,
// translating fsnotify events into FileChange values until ctx is
// cancelled. A permission-denied subtree is logged once and skipped
// rather than aborting the whole watch (spec §4.7 "survives transient
// errors").
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.addTree(w.root); err != nil {
		return err
	}
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher reported an error", "error", err)
		}
	}
}

// addTree walks root and registers every directory (fsnotify watches
// are per-directory, not recursive) with the underlying notifier,
// skipping excluded subtrees and logging permission errors once.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				w.warnOnce(path, err)
				return fs.SkipDir
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr == nil && w.excluded(rel) {
			return fs.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			if errors.Is(err, fs.ErrPermission) {
				w.warnOnce(path, err)
				return fs.SkipDir
			}
			return err
		}
		return nil
	})
}

func (w *Watcher) warnOnce(path string, err error) {
	w.warnedMu.Lock()
	defer w.warnedMu.Unlock()
	if w.warned[path] {
		return
	}
	w.warned[path] = true
	slog.Warn("skipping unreadable subtree", "path", path, "error", err)
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		rel = ev.Name
	}
	rel = filepath.ToSlash(rel)
	if w.excluded(rel) {
		return
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// A new directory needs its own watch registered so nested
			// changes are observed too.
			_ = w.addTree(ev.Name)
		}
		w.emit(ev.Name, rel, Created)
	case ev.Op&fsnotify.Write != 0:
		w.emit(ev.Name, rel, Modified)
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.emit(ev.Name, rel, Deleted)
	}
}

func (w *Watcher) emit(full, rel string, kind ChangeKind) {
	if w.events == nil {
		return
	}
	select {
	case w.events <- FileChange{FullPath: full, RelativePath: rel, Kind: kind}:
	default:
		// The channel is full; the debouncer consuming it collapses
		// bursts anyway, so drop rather than block the notifier loop.
		slog.Warn("watch event queue full, dropping event", "path", rel)
	}
}

func (w *Watcher) excluded(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	for _, pattern := range w.excludes {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}
