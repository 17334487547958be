package mdimg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchEvent represents a filesystem event type
type WatchEvent string

// Watch event types
const (
	EventCreate WatchEvent = "create"
	EventModify WatchEvent = "modify"
)

// WatchOptions defines options for watching a tree
type WatchOptions struct {
	// Match selects the files whose events are delivered. Nil accepts all files.
	Match func(path string) bool

	// Skip hidden directories when adding watches
	SkipHidden bool

	// Directory base-name globs that are never watched
	ExcludeDir []string

	Logger *zap.Logger
}

// WatchMessage describes one delivered event
type WatchMessage struct {
	Path  string
	Event WatchEvent
}

// WatchHandler processes watch events. An error is logged and watching continues.
type WatchHandler func(ctx context.Context, msg WatchMessage) error

// Watch monitors every directory under root until ctx is done. Directories
// created while watching are added as they appear.
func Watch(ctx context.Context, root string, opts WatchOptions, handler WatchHandler) error {
	if handler == nil {
		return fmt.Errorf("watch %s: nil handler", root)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	walkOpts := Options{ExcludeDir: opts.ExcludeDir, SkipHidden: opts.SkipHidden}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating watcher: %w", err)
	}
	defer watcher.Close()

	addTree := func(dir string) error {
		return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				logger.Warn("cannot watch", zap.String("path", path), zap.Error(err))
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() {
				return nil
			}
			if path != dir && (walkOpts.excluded(d.Name()) || (opts.SkipHidden && strings.HasPrefix(d.Name(), "."))) {
				return filepath.SkipDir
			}
			if err := watcher.Add(path); err != nil {
				logger.Warn("cannot watch", zap.String("path", path), zap.Error(err))
			}
			return nil
		})
	}

	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("error watching directory %s: %w", root, err)
	}
	if err := addTree(root); err != nil {
		return fmt.Errorf("error walking directory tree: %w", err)
	}
	logger.Debug("watching", zap.String("root", root), zap.Int("dirs", len(watcher.WatchList())))

	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			var kind WatchEvent
			switch {
			case event.Has(fsnotify.Create):
				kind = EventCreate
			case event.Has(fsnotify.Write):
				kind = EventModify
			default:
				continue
			}

			info, err := os.Stat(event.Name)
			if err != nil {
				// Created and removed before we got here.
				logger.Debug("event target vanished", zap.String("path", event.Name), zap.Error(err))
				continue
			}
			if info.IsDir() {
				if kind == EventCreate {
					if err := addTree(event.Name); err != nil {
						logger.Warn("cannot watch new directory", zap.String("path", event.Name), zap.Error(err))
					}
				}
				continue
			}
			if opts.Match != nil && !opts.Match(event.Name) {
				continue
			}

			if err := handler(ctx, WatchMessage{Path: event.Name, Event: kind}); err != nil {
				logger.Warn("error handling event",
					zap.String("path", event.Name),
					zap.String("event", string(kind)),
					zap.Error(err),
				)
			}
		}
	}
}
