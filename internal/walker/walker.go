// Package walker discovers indexable files under a project root.
package walker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codectx/codectx/internal/gitignore"
)

// gitignoreCacheSize bounds the number of per-directory gitignore matchers
// kept in memory during one walk.
const gitignoreCacheSize = 1000

// DefaultMaxFileSize is the default oversize-file ceiling (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// Result is one entry streamed from Walk. Exactly one of Path or Err is set.
type Result struct {
	Path string // absolute path
	Err  error
}

// SkipReason categorizes why a candidate path did not produce a Result.
type SkipReason string

const (
	SkipOversize    SkipReason = "oversize"
	SkipUnreadable  SkipReason = "unreadable"
	SkipExcluded    SkipReason = "excluded"
	SkipNoExtension SkipReason = "no_extension_match"
)

// Stats accumulates counters for one walk, read after the result channel closes.
type Stats struct {
	mu       sync.Mutex
	Oversize int
	Skipped  int
}

func (s *Stats) incOversize() {
	s.mu.Lock()
	s.Oversize++
	s.mu.Unlock()
}

func (s *Stats) incSkipped() {
	s.mu.Lock()
	s.Skipped++
	s.mu.Unlock()
}

// Options configures one Walk invocation.
type Options struct {
	// Root is the absolute project root.
	Root string

	// Extensions is the inclusion set, e.g. {".go", ".ts"}. A path is
	// emitted only if it matches one of these (case-sensitive, with dot).
	Extensions []string

	// ExcludePatterns are glob patterns matched against the
	// forward-slash-normalized path relative to Root.
	ExcludePatterns []string

	// RespectGitignore enables .gitignore parsing alongside ExcludePatterns.
	RespectGitignore bool

	// MaxFileSize is the oversize ceiling in bytes (0 = DefaultMaxFileSize).
	MaxFileSize int64

	// Workers sizes the result channel's buffer (Workers*4; 0 = NumCPU).
	// The walk itself runs in a single goroutine.
	Workers int

	// OnWarning, if set, is called for skipped-unreadable files instead of
	// silently dropping them.
	OnWarning func(path string, err error)
}

// Walker discovers candidate files, applying an extension whitelist and
// exclusion patterns. Symbolic links are never followed.
type Walker struct {
	gitignoreCache *lru.Cache[string, *gitignore.PathFilter]
}

// New creates a Walker with a bounded gitignore-matcher cache.
func New() (*Walker, error) {
	cache, err := lru.New[string, *gitignore.PathFilter](gitignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitignore cache: %w", err)
	}
	return &Walker{gitignoreCache: cache}, nil
}

// Walk streams absolute file paths under opts.Root. The channel is closed
// when the walk completes or ctx is cancelled. Order is not guaranteed.
func (w *Walker) Walk(ctx context.Context, opts Options, stats *Stats) (<-chan Result, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", absRoot)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if stats == nil {
		stats = &Stats{}
	}

	extSet := make(map[string]struct{}, len(opts.Extensions))
	for _, e := range opts.Extensions {
		extSet[e] = struct{}{}
	}

	var rootMatcher *gitignore.PathFilter
	if opts.RespectGitignore {
		rootMatcher = w.loadGitignore(absRoot, absRoot)
	}

	out := make(chan Result, workers*4)

	go func() {
		defer close(out)
		w.walkDir(ctx, absRoot, absRoot, opts, extSet, rootMatcher, maxSize, stats, out)
	}()

	return out, nil
}

func (w *Walker) walkDir(ctx context.Context, root, dir string, opts Options, extSet map[string]struct{}, parent *gitignore.PathFilter, maxSize int64, stats *Stats, out chan<- Result) {
	select {
	case <-ctx.Done():
		return
	default:
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		select {
		case out <- Result{Err: fmt.Errorf("read dir %s: %w", dir, err)}:
		case <-ctx.Done():
		}
		return
	}

	matcher := parent
	if opts.RespectGitignore {
		if m := w.loadGitignore(root, dir); m != nil {
			matcher = m
		}
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return
		default:
		}

		abs := filepath.Join(dir, entry.Name())
		rel, _ := filepath.Rel(root, abs)
		rel = filepath.ToSlash(rel)

		// Symlinks are never followed.
		lstat, err := os.Lstat(abs)
		if err != nil {
			continue
		}
		if lstat.Mode()&os.ModeSymlink != 0 {
			continue
		}

		if entry.IsDir() {
			if isAlwaysIgnoredDir(entry.Name()) {
				continue
			}
			if matcher != nil && matcher.Ignored(rel, true) {
				continue
			}
			w.walkDir(ctx, root, abs, opts, extSet, matcher, maxSize, stats, out)
			continue
		}

		if matcher != nil && matcher.Ignored(rel, false) {
			stats.incSkipped()
			continue
		}
		if matchesAnyGlob(opts.ExcludePatterns, rel) {
			stats.incSkipped()
			continue
		}
		if len(extSet) > 0 {
			if _, ok := extSet[filepath.Ext(entry.Name())]; !ok {
				continue
			}
		}

		fi, err := entry.Info()
		if err != nil {
			if opts.OnWarning != nil {
				opts.OnWarning(abs, err)
			}
			stats.incSkipped()
			continue
		}
		if fi.Size() > maxSize {
			stats.incOversize()
			continue
		}
		if !isReadable(abs) {
			if opts.OnWarning != nil {
				opts.OnWarning(abs, fmt.Errorf("unreadable"))
			}
			stats.incSkipped()
			continue
		}

		select {
		case out <- Result{Path: abs}:
		case <-ctx.Done():
			return
		}
	}
}

// loadGitignore returns the PathFilter for dir, or nil when dir has no
// .gitignore of its own (the walk then keeps the parent's filter). The
// filter holds every .gitignore from root down to dir, outermost first,
// each scoped to its directory's path relative to root ("" for root
// itself) so Ignored can be called with root-relative paths throughout
// the walk; a deeper file's rules come later and so take precedence.
func (w *Walker) loadGitignore(root, dir string) *gitignore.PathFilter {
	if cached, ok := w.gitignoreCache.Get(dir); ok {
		return cached
	}
	giPath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(giPath); err != nil {
		return nil
	}

	scope := ""
	if dir != root {
		rel, err := filepath.Rel(root, dir)
		if err != nil {
			return nil
		}
		scope = filepath.ToSlash(rel)
	}

	f := gitignore.NewPathFilter()
	if scope != "" {
		parts := strings.Split(scope, "/")
		for i := range parts {
			anc := strings.Join(parts[:i], "/")
			_ = f.LoadFile(filepath.Join(root, filepath.FromSlash(anc), ".gitignore"), anc)
		}
	}
	if err := f.LoadFile(giPath, scope); err != nil {
		return nil
	}
	w.gitignoreCache.Add(dir, f)
	return f
}

func isAlwaysIgnoredDir(name string) bool {
	switch name {
	case ".git", "node_modules", ".context":
		return true
	default:
		return false
	}
}

func matchesAnyGlob(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
		if strings.Contains(p, "**") {
			trimmed := strings.ReplaceAll(p, "**/", "")
			if ok, _ := filepath.Match(trimmed, filepath.Base(rel)); ok {
				return true
			}
		}
	}
	return false
}

func isReadable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
