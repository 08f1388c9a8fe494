package daemon

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDefault absorbs editor write bursts into one reload.
const debounceDefault = 200 * time.Millisecond

// PolicyWatcher watches a policy file and fires a callback when it changes.
// The serve loop uses it to invalidate the policy cache, so edited policies
// take effect without a restart.
type PolicyWatcher struct {
	path     string
	onChange func()
	debounce time.Duration
}

// NewPolicyWatcher creates a watcher for one policy file.
func NewPolicyWatcher(path string, onChange func()) *PolicyWatcher {
	return &PolicyWatcher{
		path:     path,
		onChange: onChange,
		debounce: debounceDefault,
	}
}

// Run watches the policy file's directory (editors replace files rather
// than writing in place, so watching the file itself misses renames).
// Blocks until ctx is cancelled.
func (w *PolicyWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	// Single debounce timer, reset on each event. Starts stopped.
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	pending := false
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			if pending {
				pending = false
				w.onChange()
			}

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			pending = true
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}
