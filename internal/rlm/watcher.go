package rlm

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher turns filesystem writes under the sessions directory into
// session:transcript:update events. Debouncing lives in the maintainer,
// not here.
type Watcher struct {
	dir    string
	notify func(sessionFile string)
	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher over a sessions directory. notify is called
// with the session file path for every observed append.
func NewWatcher(dir string, notify func(sessionFile string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{dir: dir, notify: notify, fsw: fsw}, nil
}

// Start begins watching. The sessions directory must exist.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fsw.Add(w.dir); err != nil {
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop(ctx)

	slog.Info("session watcher started", "dir", w.dir)
	return nil
}

// Stop shuts down the watcher.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if filepath.Ext(event.Name) != ".jsonl" {
				continue
			}
			w.notify(event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("session watcher error", "error", err)
		}
	}
}
