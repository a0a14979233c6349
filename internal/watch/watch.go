// Package watch re-runs a callback when the migrations directory changes.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDelay = 500 * time.Millisecond

// Watcher watches a directory tree for changes.
type Watcher struct {
	dir      string
	callback func() error
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// New creates a watcher over dir. The callback runs once at start and again
// after each (debounced) change.
func New(dir string, callback func() error) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	if err := watcher.Add(absDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", absDir, err)
	}

	// fsnotify is not recursive: each existing migration directory needs
	// its own watch, or edits to their SQL files never produce events.
	entries, err := os.ReadDir(absDir)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to read %s: %w", absDir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if err := watcher.Add(filepath.Join(absDir, entry.Name())); err != nil {
				watcher.Close()
				return nil, fmt.Errorf("failed to watch %s: %w", entry.Name(), err)
			}
		}
	}

	return &Watcher{
		dir:      absDir,
		callback: callback,
		watcher:  watcher,
		done:     make(chan struct{}),
	}, nil
}

// Start runs the callback once, then blocks processing events until Stop.
func (w *Watcher) Start() error {
	if err := w.callback(); err != nil {
		return fmt.Errorf("initial run failed: %w", err)
	}

	debounce := time.NewTimer(debounceDelay)
	debounce.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				// New migration directories need watching too.
				if event.Op&fsnotify.Create != 0 {
					_ = w.watcher.Add(event.Name)
				}
				debounce.Reset(debounceDelay)
			}

		case <-debounce.C:
			if err := w.callback(); err != nil {
				// Keep watching, a broken migration will be fixed and
				// saved again.
				fmt.Printf("watch run failed: %v\n", err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Printf("watch error: %v\n", err)

		case <-w.done:
			return nil
		}
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
}
