package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tristendillon/pytrace/core/logger"
	"github.com/tristendillon/pytrace/core/models"
)

// TraceFunc runs one trace and returns the root-relative paths it read.
// Writes to those files trigger the next trace.
type TraceFunc func(ctx context.Context) ([]string, error)

type Options struct {
	RootDir      string
	ExcludePaths []string
	Debounce     time.Duration
}

type FileWatcher struct {
	Watcher       *fsnotify.Watcher
	RootDir       string
	ExcludePaths  []string
	Debounce      time.Duration
	DebounceTimer *time.Timer
	Mutex         sync.Mutex

	trace   TraceFunc
	running sync.Mutex
	tracked map[string]struct{}
}

func NewFileWatcher(opts Options, trace TraceFunc) (*FileWatcher, error) {
	root, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("invalid watch root %s: %w", opts.RootDir, err)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	fw := &FileWatcher{
		Watcher:      w,
		RootDir:      root,
		ExcludePaths: opts.ExcludePaths,
		Debounce:     debounce,
		trace:        trace,
		tracked:      make(map[string]struct{}),
	}
	logger.Debug("Excluding paths: %v", fw.ExcludePaths)
	return fw, nil
}

// Watch traces once, then re-traces after every debounced burst of relevant
// changes until ctx is done.
func (fw *FileWatcher) Watch(ctx context.Context) error {
	if err := fw.addWatchersRecursively(fw.RootDir); err != nil {
		return fmt.Errorf("failed to add watchers: %w", err)
	}

	if err := fw.run(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logger.Error("Initial trace failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			fw.stopTimer()
			return nil

		case event, ok := <-fw.Watcher.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}

			if event.Has(fsnotify.Create) {
				if stat, err := os.Stat(event.Name); err == nil && stat.IsDir() {
					if !fw.shouldExcludePath(event.Name) {
						logger.Debug("Adding watcher for new directory: %s", event.Name)
						if err := fw.addWatchersRecursively(event.Name); err != nil {
							logger.Warn("Failed to watch %s: %v", event.Name, err)
						}
					}
					continue
				}
			}

			if !fw.isRelevant(event) {
				continue
			}
			logger.Debug("File event: %s %s", event.Op, event.Name)
			fw.debounceTrace(ctx)

		case err, ok := <-fw.Watcher.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			logger.Error("Watcher error: %v", err)
		}
	}
}

// isRelevant reports whether event can change the trace result. A write
// only matters for a file the last trace read, while creating, removing or
// renaming any source file can change how imports resolve.
func (fw *FileWatcher) isRelevant(event fsnotify.Event) bool {
	if !models.IsSourceFile(event.Name) || fw.shouldExcludePath(event.Name) {
		return false
	}
	if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		return true
	}
	if event.Has(fsnotify.Write) {
		fw.Mutex.Lock()
		defer fw.Mutex.Unlock()
		_, ok := fw.tracked[fw.relPath(event.Name)]
		return ok
	}
	return false
}

func (fw *FileWatcher) debounceTrace(ctx context.Context) {
	fw.Mutex.Lock()
	defer fw.Mutex.Unlock()

	if fw.DebounceTimer != nil {
		fw.DebounceTimer.Stop()
	}

	fw.DebounceTimer = time.AfterFunc(fw.Debounce, func() {
		if ctx.Err() != nil {
			return
		}
		logger.Debug("File changes detected, tracing again...")
		if err := fw.run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Trace failed: %v", err)
		}
	})
}

func (fw *FileWatcher) run(ctx context.Context) error {
	fw.running.Lock()
	defer fw.running.Unlock()

	files, err := fw.trace(ctx)
	if err != nil {
		return err
	}

	tracked := make(map[string]struct{}, len(files))
	for _, f := range files {
		tracked[filepath.Clean(f)] = struct{}{}
	}
	fw.Mutex.Lock()
	fw.tracked = tracked
	fw.Mutex.Unlock()
	return nil
}

func (fw *FileWatcher) relPath(path string) string {
	rel, err := filepath.Rel(fw.RootDir, path)
	if err != nil {
		return filepath.Clean(path)
	}
	return rel
}

func (fw *FileWatcher) stopTimer() {
	fw.Mutex.Lock()
	defer fw.Mutex.Unlock()
	if fw.DebounceTimer != nil {
		fw.DebounceTimer.Stop()
	}
}

func (fw *FileWatcher) Close() error {
	fw.stopTimer()
	return fw.Watcher.Close()
}

// shouldExcludePath matches exclude entries as root-relative prefixes. An
// entry without a separator, such as __pycache__, also matches any path
// component.
func (fw *FileWatcher) shouldExcludePath(path string) bool {
	relPath, err := filepath.Rel(fw.RootDir, path)
	if err != nil {
		return false
	}

	relPath = filepath.Clean(relPath)
	parts := strings.Split(relPath, string(filepath.Separator))

	for _, excludePath := range fw.ExcludePaths {
		excludePath = filepath.Clean(excludePath)

		if relPath == excludePath {
			return true
		}
		if strings.HasPrefix(relPath, excludePath+string(filepath.Separator)) {
			return true
		}
		if !strings.ContainsRune(excludePath, filepath.Separator) {
			for _, part := range parts {
				if part == excludePath {
					return true
				}
			}
		}
	}

	return false
}

func (fw *FileWatcher) addWatchersRecursively(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() {
			return nil
		}

		if fw.shouldExcludePath(path) {
			logger.Debug("Excluding directory: %s", path)
			return filepath.SkipDir
		}

		logger.Debug("Adding watcher for: %s", path)
		if err := fw.Watcher.Add(path); err != nil {
			return fmt.Errorf("failed to add watcher for %s: %w", path, err)
		}

		return nil
	})
}
