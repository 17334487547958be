// Package walk exposes the concurrent directory walker and the Markdown image
// checker built on top of it.
package walk

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/TFMV/mdimg/internal/check"
	"github.com/TFMV/mdimg/internal/mdv"
	"github.com/TFMV/mdimg/internal/report"
	"github.com/TFMV/mdimg/internal/scan"
	internal "github.com/TFMV/mdimg/internal/walk"
)

// Re-export the walker types
type (
	// Options configures a walk.
	Options = internal.Options

	// Result holds every file found by a walk and the entries that failed.
	Result = internal.Result

	// Entry is a single non-directory path found during a walk.
	Entry = internal.Entry

	// Kind classifies an Entry.
	Kind = internal.Kind

	// ListError reports a directory that could not be listed.
	ListError = internal.ListError

	// Stats holds traversal statistics reported to a ProgressFn.
	Stats = internal.Stats

	// ProgressFn is called periodically with traversal statistics.
	ProgressFn = internal.ProgressFn

	// ErrorHandling defines how unreadable directories are handled.
	ErrorHandling = internal.ErrorHandling

	// SymlinkHandling defines how symbolic links are processed.
	SymlinkHandling = internal.SymlinkHandling

	// LogLevel defines the verbosity of logging.
	LogLevel = internal.LogLevel

	// Re-export watch types
	WatchEvent   = internal.WatchEvent
	WatchOptions = internal.WatchOptions
	WatchMessage = internal.WatchMessage
	WatchHandler = internal.WatchHandler

	// Summary describes a completed check.
	Summary = check.Summary

	// Diagnostic is one reported image problem.
	Diagnostic = report.Diagnostic
)

// Re-export all the constants
const (
	KindFile         = internal.KindFile
	KindInaccessible = internal.KindInaccessible

	// Error handling modes
	ErrorHandlingContinue = internal.ErrorHandlingContinue
	ErrorHandlingStop     = internal.ErrorHandlingStop
	ErrorHandlingSkip     = internal.ErrorHandlingSkip

	// Symlink handling modes
	SymlinkFollow = internal.SymlinkFollow
	SymlinkIgnore = internal.SymlinkIgnore

	// Log levels
	LogLevelError = internal.LogLevelError
	LogLevelWarn  = internal.LogLevelWarn
	LogLevelInfo  = internal.LogLevelInfo
	LogLevelDebug = internal.LogLevelDebug

	// Watch event constants
	EventCreate = internal.EventCreate
	EventModify = internal.EventModify
)

// Collect walks the tree rooted at root and returns every file below it.
// It returns only after every subdirectory has been listed or has failed.
func Collect(ctx context.Context, root string, opts Options) (Result, error) {
	return internal.Collect(ctx, root, opts)
}

// NewOptions creates Options with default values.
func NewOptions() Options {
	return Options{
		ErrorHandling:   ErrorHandlingContinue,
		SymlinkHandling: SymlinkFollow,
		Workers:         internal.DefaultWorkers,
		LogLevel:        LogLevelInfo,
	}
}

// NewLogger builds a zap logger for the given level.
func NewLogger(level LogLevel) *zap.Logger {
	return internal.NewLogger(level)
}

// Watch monitors a directory for created or modified files.
func Watch(ctx context.Context, root string, opts WatchOptions, handler WatchHandler) error {
	return internal.Watch(ctx, root, opts, handler)
}

// CheckOptions configures Check.
type CheckOptions struct {
	Walk Options

	// Pattern is the file name pattern to check. Defaults to index.md.
	Pattern string

	// Extensions mark a line for checking. Defaults to jpeg, png, svg, gif, jpg.
	Extensions []string

	// Format is "text" or "json".
	Format string

	Workers int
	Debug   bool
	Logger  *zap.Logger
}

// Check walks root and writes one diagnostic per problematic image line to w.
func Check(ctx context.Context, root string, w io.Writer, opts CheckOptions) (Summary, error) {
	printer, err := report.NewPrinter(opts.Format, w)
	if err != nil {
		return Summary{}, err
	}
	c, err := check.New(mdv.NewGoldmark(opts.Logger), printer, check.Options{
		Walk: opts.Walk,
		Scan: scan.Options{
			Pattern:    opts.Pattern,
			Extensions: opts.Extensions,
		},
		Debug:   opts.Debug,
		Workers: opts.Workers,
		Logger:  opts.Logger,
	})
	if err != nil {
		return Summary{}, err
	}
	return c.Run(ctx, root)
}
