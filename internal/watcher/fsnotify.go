package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codectx/codectx/internal/gitignore"
)

// HybridWatcher is the fsnotify-backed Watcher implementation, falling back
// to directory polling when fsnotify fails to initialize (network mounts,
// some Docker volume drivers).
type HybridWatcher struct {
	opts Options

	mu               sync.Mutex
	fsw              *fsnotify.Watcher
	root             string
	ignore           *gitignore.PathFilter
	gitignoreContent string
	debounce         *Debouncer

	pendingRenameFrom string
	pendingRenameAt   time.Time

	events   chan FileEvent
	errs     chan error
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHybridWatcher creates a Watcher with opts.WithDefaults() applied.
func NewHybridWatcher(opts Options) (*HybridWatcher, error) {
	opts = opts.WithDefaults()
	return &HybridWatcher{
		opts:   opts,
		events: make(chan FileEvent, opts.EventBufferSize),
		errs:   make(chan error, 16),
		stopCh: make(chan struct{}),
	}, nil
}

// Start begins watching path. fsnotify failures fall back to polling
// rather than returning an error, matching the package's hybrid-strategy
// contract.
func (w *HybridWatcher) Start(ctx context.Context, path string) error {
	w.mu.Lock()
	w.root = path
	w.debounce = NewDebouncer(w.opts.DebounceWindow)
	w.mu.Unlock()
	w.rebuildIgnore()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		go w.runPolling(ctx, path)
		go w.forwardDebounced(ctx)
		return nil
	}

	if err := w.addRecursive(fsw, path); err != nil {
		_ = fsw.Close()
		go w.runPolling(ctx, path)
		go w.forwardDebounced(ctx)
		return nil
	}

	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	go w.runFsnotify(ctx, fsw)
	go w.forwardDebounced(ctx)
	return nil
}

// Stop stops the watcher and releases resources. Safe to call multiple
// times.
func (w *HybridWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		if w.fsw != nil {
			err = w.fsw.Close()
		}
		if w.debounce != nil {
			w.debounce.Stop()
		}
		w.mu.Unlock()
		close(w.events)
		close(w.errs)
	})
	return err
}

// Events returns the channel of debounced, gitignore-filtered file events.
func (w *HybridWatcher) Events() <-chan FileEvent { return w.events }

// Errors returns the channel of non-fatal watcher errors.
func (w *HybridWatcher) Errors() <-chan error { return w.errs }

func (w *HybridWatcher) addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(p)
		if base == ".git" || base == "node_modules" || base == ".context" {
			return filepath.SkipDir
		}
		return fsw.Add(p)
	})
}

func (w *HybridWatcher) runFsnotify(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleFsnotifyEvent(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

// renamePairWindow bounds how long a Rename event (fired for the path being
// renamed FROM) can wait for the matching Create event (fired for the path
// being renamed TO). The next reported event settles it: a Create within
// the window pairs with it into one OpRename; anything else, or a Create
// after the window, reports it as a plain delete first. fsnotify does not
// report renames atomically, so the two legs arrive as separate events
// milliseconds apart.
const renamePairWindow = 500 * time.Millisecond

func (w *HybridWatcher) handleFsnotifyEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	info, statErr := os.Stat(ev.Name)
	isDir := statErr == nil && info.IsDir()

	if w.ignore.Ignored(rel, isDir) {
		return
	}

	if isDir && ev.Op&fsnotify.Create != 0 {
		_ = w.addRecursive(fsw, ev.Name)
	}

	op, ok := translateOp(ev.Op)
	if !ok {
		return
	}
	now := time.Now()

	w.mu.Lock()
	pendingFrom := w.pendingRenameFrom
	pendingFresh := pendingFrom != "" && now.Sub(w.pendingRenameAt) <= renamePairWindow
	if op == OpRename {
		w.pendingRenameFrom = rel
		w.pendingRenameAt = now
	} else {
		w.pendingRenameFrom = ""
	}
	w.mu.Unlock()

	if op == OpRename {
		// An earlier rename that never paired is reported as a delete; this
		// one waits for its paired Create before emitting anything.
		if pendingFrom != "" {
			w.debounce.Add(FileEvent{Path: pendingFrom, Operation: OpDelete, Timestamp: now})
		}
		return
	}

	if pendingFresh && op == OpCreate {
		w.debounce.Add(FileEvent{
			Path:      rel,
			OldPath:   pendingFrom,
			Operation: OpRename,
			IsDir:     isDir,
			Timestamp: now,
		})
	} else {
		if pendingFrom != "" {
			w.debounce.Add(FileEvent{Path: pendingFrom, Operation: OpDelete, Timestamp: now})
		}
		w.debounce.Add(FileEvent{
			Path:      rel,
			Operation: op,
			IsDir:     isDir,
			Timestamp: now,
		})
	}

	if rel == ".gitignore" {
		w.debounce.Add(FileEvent{Path: rel, Operation: OpGitignoreChange, Timestamp: now})
		w.rebuildIgnore()
	}
}

// rebuildIgnore reloads the root .gitignore (if any) plus opts.IgnorePatterns
// into a fresh PathFilter, logging what changed since the last load. Called
// once from Start and again every time a live .gitignore edit is observed.
func (w *HybridWatcher) rebuildIgnore() {
	content := ""
	if data, err := os.ReadFile(filepath.Join(w.root, ".gitignore")); err == nil {
		content = string(data)
	}

	if added, removed := gitignore.PatternDelta(w.gitignoreContent, content); len(added) > 0 || len(removed) > 0 {
		slog.Info("gitignore rules changed",
			slog.Int("added", len(added)),
			slog.Int("removed", len(removed)))
	}
	w.gitignoreContent = content

	f := gitignore.NewPathFilter()
	for _, p := range gitignore.SplitPatterns(content) {
		f.AddRule(p)
	}
	for _, p := range w.opts.IgnorePatterns {
		f.AddRule(p)
	}

	w.mu.Lock()
	w.ignore = f
	w.mu.Unlock()
}

func translateOp(op fsnotify.Op) (Operation, bool) {
	switch {
	case op&fsnotify.Create != 0:
		return OpCreate, true
	case op&fsnotify.Write != 0:
		return OpModify, true
	case op&fsnotify.Remove != 0:
		return OpDelete, true
	case op&fsnotify.Rename != 0:
		return OpRename, true
	default:
		return 0, false
	}
}

// runPolling is the no-fsnotify fallback: it rescans the tree every
// PollInterval and diffs modification times against the previous scan.
func (w *HybridWatcher) runPolling(ctx context.Context, root string) {
	prev := w.scanModTimes(root)
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			current := w.scanModTimes(root)
			w.diffModTimes(prev, current)
			prev = current
		}
	}
}

func (w *HybridWatcher) scanModTimes(root string) map[string]time.Time {
	out := make(map[string]time.Time)
	_ = filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			base := filepath.Base(p)
			if base == ".git" || base == "node_modules" || base == ".context" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if w.ignore.Ignored(rel, false) {
			return nil
		}
		out[rel] = info.ModTime()
		return nil
	})
	return out
}

func (w *HybridWatcher) diffModTimes(prev, current map[string]time.Time) {
	now := time.Now()
	gitignoreChanged := false
	for rel, modTime := range current {
		if old, ok := prev[rel]; !ok {
			w.debounce.Add(FileEvent{Path: rel, Operation: OpCreate, Timestamp: now})
			gitignoreChanged = gitignoreChanged || rel == ".gitignore"
		} else if !old.Equal(modTime) {
			w.debounce.Add(FileEvent{Path: rel, Operation: OpModify, Timestamp: now})
			gitignoreChanged = gitignoreChanged || rel == ".gitignore"
		}
	}
	for rel := range prev {
		if _, ok := current[rel]; !ok {
			w.debounce.Add(FileEvent{Path: rel, Operation: OpDelete, Timestamp: now})
		}
	}
	if gitignoreChanged {
		w.debounce.Add(FileEvent{Path: ".gitignore", Operation: OpGitignoreChange, Timestamp: now})
		w.rebuildIgnore()
	}
}

func (w *HybridWatcher) forwardDebounced(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debounce.Output():
			if !ok {
				return
			}
			for _, ev := range batch {
				select {
				case w.events <- ev:
				case <-w.stopCh:
					return
				}
			}
		}
	}
}
