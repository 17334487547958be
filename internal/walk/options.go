package mdimg

import (
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultWorkers bounds the number of filesystem calls in flight when no
// explicit limit is provided.
const DefaultWorkers int = 64

// --------------------------------------------------------------------------
// Core types for progress monitoring
// --------------------------------------------------------------------------

// ProgressFn is called periodically with traversal statistics.
// Implementations must be thread-safe as this may be called concurrently.
type ProgressFn func(stats Stats)

// Stats holds traversal statistics that are updated atomically during the walk.
type Stats struct {
	FilesFound   int64         // Number of files collected
	DirsWalked   int64         // Number of directories listed
	EmptyDirs    int64         // Number of empty directories
	Inaccessible int64         // Entries that could not be inspected
	ErrorCount   int64         // Directory listing failures
	ElapsedTime  time.Duration // Total time elapsed
	DirsPerSec   float64       // Listing speed
}

// snapshot copies the counters so the caller can read them without races.
func (s *Stats) snapshot(start time.Time) Stats {
	out := Stats{
		FilesFound:   atomic.LoadInt64(&s.FilesFound),
		DirsWalked:   atomic.LoadInt64(&s.DirsWalked),
		EmptyDirs:    atomic.LoadInt64(&s.EmptyDirs),
		Inaccessible: atomic.LoadInt64(&s.Inaccessible),
		ErrorCount:   atomic.LoadInt64(&s.ErrorCount),
		ElapsedTime:  time.Since(start),
	}
	if sec := out.ElapsedTime.Seconds(); sec > 0 {
		out.DirsPerSec = float64(out.DirsWalked) / sec
	}
	return out
}

// --------------------------------------------------------------------------
// Configuration types
// --------------------------------------------------------------------------

// ErrorHandling defines how subdirectory listing failures are handled.
type ErrorHandling int

const (
	ErrorHandlingContinue ErrorHandling = iota // Record the error, keep walking
	ErrorHandlingStop                          // Cancel the walk on the first error
	ErrorHandlingSkip                          // Drop the failed subtree silently
)

// String implements fmt.Stringer.
func (e ErrorHandling) String() string {
	switch e {
	case ErrorHandlingStop:
		return "stop"
	case ErrorHandlingSkip:
		return "skip"
	default:
		return "continue"
	}
}

// ParseErrorHandling maps a CLI value to an ErrorHandling mode.
func ParseErrorHandling(s string) (ErrorHandling, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "continue":
		return ErrorHandlingContinue, true
	case "stop":
		return ErrorHandlingStop, true
	case "skip":
		return ErrorHandlingSkip, true
	}
	return ErrorHandlingContinue, false
}

// SymlinkHandling defines how symbolic links are processed.
type SymlinkHandling int

const (
	SymlinkFollow SymlinkHandling = iota // Follow symbolic links
	SymlinkIgnore                        // Ignore symbolic links
)

// LogLevel defines the verbosity of logging.
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// Options configures a Collect call. The zero value is usable.
type Options struct {
	ErrorHandling   ErrorHandling
	SymlinkHandling SymlinkHandling
	ExcludeDir      []string // Glob patterns matched against directory base names
	SkipHidden      bool     // Skip entries whose name starts with "."
	Workers         int      // Concurrent filesystem calls; DefaultWorkers when <= 0
	Progress        ProgressFn
	Logger          *zap.Logger
	LogLevel        LogLevel // Used only when Logger is nil
}

// excluded reports whether a directory name matches one of the exclude globs.
func (o *Options) excluded(name string) bool {
	for _, pattern := range o.ExcludeDir {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

// NewLogger creates a zap logger with the specified log level.
func NewLogger(level LogLevel) *zap.Logger {
	var config zap.Config

	switch level {
	case LogLevelError:
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	case LogLevelWarn:
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case LogLevelDebug:
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
