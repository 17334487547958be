// Package check ties the walker, scanner, validator and printer together.
package check

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/TFMV/mdimg/internal/mdv"
	"github.com/TFMV/mdimg/internal/report"
	"github.com/TFMV/mdimg/internal/scan"
	walk "github.com/TFMV/mdimg/internal/walk"
)

// Options configures a Checker.
type Options struct {
	Walk    walk.Options
	Scan    scan.Options
	Debug   bool // Forwarded to the validator
	Workers int  // Files scanned concurrently; runtime.NumCPU() when <= 0
	Logger  *zap.Logger
}

// Summary describes one Run.
type Summary struct {
	FilesWalked  int
	FilesMatched int
	FilesUnread  int64 // Matched files that could not be read
	LinesChecked int64
	Problems     int64
	Inaccessible int
	WalkErrors   error // Subdirectories that could not be listed
	Elapsed      time.Duration
}

// FileResult describes one checked file.
type FileResult struct {
	Path     string
	Lines    int
	Problems int
}

// Checker runs the image-line checks. It is safe for concurrent use.
type Checker struct {
	scanner   *scan.Scanner
	validator mdv.Validator
	printer   report.Printer
	opts      Options
	logger    *zap.Logger
}

// printError marks a failure to write a diagnostic; it aborts a Run.
type printError struct{ err error }

func (e *printError) Error() string { return "print diagnostic: " + e.err.Error() }
func (e *printError) Unwrap() error { return e.err }

// New builds a Checker.
func New(v mdv.Validator, p report.Printer, opts Options) (*Checker, error) {
	if v == nil {
		return nil, errors.New("check: nil validator")
	}
	if p == nil {
		return nil, errors.New("check: nil printer")
	}
	s, err := scan.New(opts.Scan)
	if err != nil {
		return nil, fmt.Errorf("check: %w", err)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Walk.Logger == nil {
		opts.Walk.Logger = logger
	}
	return &Checker{scanner: s, validator: v, printer: p, opts: opts, logger: logger}, nil
}

// Match reports whether path is a file the checker scans.
func (c *Checker) Match(path string) bool {
	return c.scanner.Match(path)
}

// Matched walks root and returns the sorted paths of matched files.
func (c *Checker) Matched(ctx context.Context, root string) ([]string, walk.Result, error) {
	res, err := walk.Collect(ctx, root, c.opts.Walk)
	if err != nil {
		return nil, res, fmt.Errorf("walk %s: %w", root, err)
	}
	for _, e := range res.Inaccessible {
		c.logger.Warn("skipping inaccessible entry", zap.String("path", e.Path), zap.Error(e.Err))
	}
	for _, e := range res.Errors {
		c.logger.Warn("directory not checked", zap.Error(e))
	}

	var matched []string
	for _, path := range res.Sorted() {
		if c.scanner.Match(path) {
			matched = append(matched, path)
		}
	}
	return matched, res, nil
}

// Run checks every matched file below root. Each matched file is scanned
// once; diagnostics from different files may interleave.
func (c *Checker) Run(ctx context.Context, root string) (Summary, error) {
	start := time.Now()
	var sum Summary

	matched, res, err := c.Matched(ctx, root)
	if err != nil {
		return sum, err
	}
	sum.FilesWalked = len(res.Files)
	sum.FilesMatched = len(matched)
	sum.Inaccessible = len(res.Inaccessible)
	sum.WalkErrors = res.Err()

	c.logger.Debug("checking files",
		zap.String("root", root),
		zap.Int("walked", sum.FilesWalked),
		zap.Int("matched", sum.FilesMatched),
		zap.Int("workers", c.opts.Workers),
	)

	p := pool.New().WithMaxGoroutines(c.opts.Workers).WithContext(ctx).WithCancelOnError()
	for _, path := range matched {
		path := path
		p.Go(func(ctx context.Context) error {
			fr, err := c.CheckFile(ctx, path)
			atomic.AddInt64(&sum.LinesChecked, int64(fr.Lines))
			atomic.AddInt64(&sum.Problems, int64(fr.Problems))
			if err == nil {
				return nil
			}
			var pe *printError
			if errors.As(err, &pe) || ctx.Err() != nil {
				return err
			}
			atomic.AddInt64(&sum.FilesUnread, 1)
			c.logger.Warn("cannot check file", zap.String("path", path), zap.Error(err))
			return nil
		})
	}
	err = p.Wait()
	sum.Elapsed = time.Since(start)
	if err != nil {
		return sum, err
	}
	return sum, ctx.Err()
}

// CheckFile validates every image line of path and prints one diagnostic
// per problematic line. Lines and Problems are valid even on error.
func (c *Checker) CheckFile(ctx context.Context, path string) (FileResult, error) {
	fr := FileResult{Path: path}
	vopts := mdv.Options{Debug: c.opts.Debug}

	err := c.scanner.Scan(ctx, path, func(line scan.Line) error {
		fr.Lines++
		d, ok := report.Diagnose(line, c.validator.Validate(line.Text, vopts))
		if !ok {
			return nil
		}
		fr.Problems++
		if err := c.printer.Print(d); err != nil {
			return &printError{err: err}
		}
		return nil
	})
	return fr, err
}
