// Package mdimg collects the regular files below a directory using one
// concurrent task per directory, and watches trees for changes.
package mdimg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Kind classifies a directory entry after inspection.
type Kind int

const (
	KindFile         Kind = iota // Regular file (or anything that is not a directory)
	KindDir                      // Directory, expanded into child entries
	KindInaccessible             // Lstat/Stat failed, e.g. the entry vanished
	KindSkipped                  // Excluded, ignored symlink or symlink cycle
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindInaccessible:
		return "inaccessible"
	default:
		return "skipped"
	}
}

// Entry is a path that could not be classified as a file or directory.
type Entry struct {
	Path string
	Kind Kind
	Err  error
}

// ListError reports a directory whose entries could not be read.
type ListError struct {
	Path string
	Err  error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("list %s: %v", e.Path, e.Err)
}

func (e *ListError) Unwrap() error { return e.Err }

// Result is the output of one directory task merged with all of its
// descendants. Files holds absolute paths; directories are never included.
type Result struct {
	Files        []string
	Inaccessible []Entry
	Errors       []error // Subdirectory listing failures (ErrorHandlingContinue)
}

func (r *Result) merge(other Result) {
	r.Files = append(r.Files, other.Files...)
	r.Inaccessible = append(r.Inaccessible, other.Inaccessible...)
	r.Errors = append(r.Errors, other.Errors...)
}

// Err joins the recorded subdirectory failures, or returns nil.
func (r Result) Err() error {
	return errors.Join(r.Errors...)
}

// Sorted returns a sorted copy of Files. Collect makes no ordering promise.
func (r Result) Sorted() []string {
	out := make([]string, len(r.Files))
	copy(out, r.Files)
	sort.Strings(out)
	return out
}

// walker holds the state shared by every directory task of one Collect call.
type walker struct {
	opts    Options
	logger  *zap.Logger
	sem    chan struct{}
	stats  *Stats
}

// ancestry is the chain of real directory paths from root down to the
// directory being listed. It is never mutated, so sibling tasks share it.
type ancestry struct {
	path   string
	parent *ancestry
}

func (a *ancestry) contains(path string) bool {
	for ; a != nil; a = a.parent {
		if a.path == path {
			return true
		}
	}
	return false
}

// Collect walks root and returns every file below it. A failure to list
// root itself is returned as a *ListError. Failures deeper in the tree are
// handled according to opts.ErrorHandling.
func Collect(ctx context.Context, root string, opts Options) (Result, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Result{}, fmt.Errorf("resolve %s: %w", root, err)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	logger := opts.Logger
	if logger == nil {
		logger = NewLogger(opts.LogLevel)
		defer logger.Sync()
	}

	w := &walker{
		opts:   opts,
		logger: logger,
		sem:    make(chan struct{}, opts.Workers),
		stats:  &Stats{},
	}

	logger.Debug("starting walk",
		zap.String("root", abs),
		zap.Int("workers", opts.Workers),
		zap.Stringer("error_handling", opts.ErrorHandling),
	)

	startTime := time.Now()
	if opts.Progress != nil {
		done := make(chan struct{})
		var tickerWg sync.WaitGroup
		tickerWg.Add(1)
		go func() {
			defer tickerWg.Done()
			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					opts.Progress(w.stats.snapshot(startTime))
				}
			}
		}()
		defer func() {
			close(done)
			tickerWg.Wait()
			opts.Progress(w.stats.snapshot(startTime))
		}()
	}

	realPath := abs
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		realPath = resolved
	}
	res, err := w.walkDir(ctx, abs, &ancestry{path: realPath})
	if err != nil {
		return res, err
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	logger.Debug("walk finished",
		zap.String("root", abs),
		zap.Int("files", len(res.Files)),
		zap.Int("inaccessible", len(res.Inaccessible)),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("elapsed", time.Since(startTime)),
	)
	return res, nil
}

// acquire takes a slot for one filesystem call. Slots are never held while
// waiting on child tasks.
func (w *walker) acquire(ctx context.Context) error {
	select {
	case w.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *walker) release() { <-w.sem }

func (w *walker) readDir(ctx context.Context, dir string) ([]string, error) {
	if err := w.acquire(ctx); err != nil {
		return nil, err
	}
	defer w.release()
	return readDirnames(dir, nil)
}

// readDirnames lists a directory; swapped in tests.
var readDirnames = godirwalk.ReadDirnames

// walkDir lists dir and runs one task per entry; the pool's Wait is the
// single completion point for this level. chain.path is dir with symlinks
// resolved.
func (w *walker) walkDir(ctx context.Context, dir string, chain *ancestry) (Result, error) {
	names, err := w.readDir(ctx, dir)
	if err != nil {
		atomic.AddInt64(&w.stats.ErrorCount, 1)
		return Result{}, &ListError{Path: dir, Err: err}
	}
	atomic.AddInt64(&w.stats.DirsWalked, 1)
	if len(names) == 0 {
		atomic.AddInt64(&w.stats.EmptyDirs, 1)
		return Result{}, nil
	}

	p := pool.NewWithResults[Result]().WithContext(ctx)
	if w.opts.ErrorHandling == ErrorHandlingStop {
		p = p.WithCancelOnError().WithFirstError()
	}
	for _, name := range names {
		if w.opts.SkipHidden && strings.HasPrefix(name, ".") {
			continue
		}
		name := name
		p.Go(func(ctx context.Context) (Result, error) {
			return w.visit(ctx, filepath.Join(dir, name), filepath.Join(chain.path, name), chain)
		})
	}

	parts, err := p.Wait()
	var res Result
	for _, part := range parts {
		res.merge(part)
	}
	return res, err
}

// visit classifies one entry and expands it when it is a directory.
func (w *walker) visit(ctx context.Context, path, realPath string, parent *ancestry) (Result, error) {
	kind, realPath, err := w.classify(ctx, path, realPath)
	if kind == KindDir && parent.contains(realPath) {
		w.logger.Debug("symlink cycle", zap.String("path", path), zap.String("real", realPath))
		kind = KindSkipped
	}
	switch kind {
	case KindFile:
		atomic.AddInt64(&w.stats.FilesFound, 1)
		return Result{Files: []string{path}}, nil
	case KindInaccessible:
		atomic.AddInt64(&w.stats.Inaccessible, 1)
		w.logger.Debug("entry inaccessible", zap.String("path", path), zap.Error(err))
		return Result{Inaccessible: []Entry{{Path: path, Kind: kind, Err: err}}}, nil
	case KindSkipped:
		return Result{}, nil
	}

	sub, err := w.walkDir(ctx, path, &ancestry{path: realPath, parent: parent})
	if err == nil {
		return sub, nil
	}
	switch w.opts.ErrorHandling {
	case ErrorHandlingStop:
		return Result{}, err
	case ErrorHandlingSkip:
		w.logger.Debug("skipping subtree", zap.String("path", path), zap.Error(err))
		return sub, nil
	default:
		w.logger.Debug("subtree unreadable", zap.String("path", path), zap.Error(err))
		sub.Errors = append(sub.Errors, err)
		return sub, nil
	}
}

// classify inspects path. Directories reached through a symlink get their
// real path resolved so a cycle back to an ancestor can be detected.
func (w *walker) classify(ctx context.Context, path, realPath string) (Kind, string, error) {
	if err := w.acquire(ctx); err != nil {
		return KindInaccessible, realPath, err
	}
	defer w.release()

	info, err := os.Lstat(path)
	if err != nil {
		return KindInaccessible, realPath, err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		if w.opts.SymlinkHandling == SymlinkIgnore {
			return KindSkipped, realPath, nil
		}
		info, err = os.Stat(path)
		if err != nil {
			return KindInaccessible, realPath, err
		}
		if !info.IsDir() {
			return KindFile, realPath, nil
		}
		realPath, err = filepath.EvalSymlinks(path)
		if err != nil {
			return KindInaccessible, realPath, err
		}
	}

	if !info.IsDir() {
		return KindFile, realPath, nil
	}
	if w.opts.excluded(info.Name()) {
		w.logger.Debug("excluded directory", zap.String("path", path))
		return KindSkipped, realPath, nil
	}
	return KindDir, realPath, nil
}
