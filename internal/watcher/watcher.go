// Package watcher observes the persisted credential file so a login or
// logout performed by another process re-triggers a status refresh in watch
// mode. The store itself stays single-writer; this only signals readers.
package watcher

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// debounceWindow absorbs the bursts of events editors and atomic writes
// produce for a single logical change.
const debounceWindow = 200 * time.Millisecond

// Watcher invokes a callback whenever the credential file changes.
type Watcher struct {
	file     string
	onChange func()

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// New creates a watcher for the given file. The callback runs on the
// watcher's goroutine and must return promptly.
func New(file string, onChange func()) *Watcher {
	return &Watcher{file: file, onChange: onChange, done: make(chan struct{})}
}

// Start begins watching. The containing directory is watched rather than
// the file itself so removals and re-creations keep being observed.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err = fsw.Add(filepath.Dir(w.file)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch credential directory: %w", err)
	}
	w.fsw = fsw

	go w.loop()
	return nil
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() {
	close(w.done)
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
}

func (w *Watcher) loop() {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	target := filepath.Clean(w.file)
	relevantOps := fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target || event.Op&relevantOps == 0 {
				continue
			}
			log.WithField("path", event.Name).Debug("credential file changed")
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, w.onChange)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warnf("credential watcher error: %v", err)
		}
	}
}
