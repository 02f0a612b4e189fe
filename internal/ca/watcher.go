// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ca

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a CA directory and invokes a callback, debounced, whenever
// the certificate or key file changes on disk — so a long-running `proxy`
// process picks up a CA regenerated by a concurrent `init --force` without
// needing a restart.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	logger    *slog.Logger

	debounce time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending *time.Timer
}

// WatchDir starts watching certDir and calls onChange (with the freshly
// loaded Store, or an error if reloading failed) after debounce has elapsed
// since the last filesystem event. onChange runs on its own goroutine per
// firing; callers that mutate shared state must synchronize internally.
// The returned Watcher stops on ctx cancellation or an explicit Close.
func WatchDir(ctx context.Context, certDir string, debounce time.Duration, logger *slog.Logger, onChange func(*Store, error)) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(certDir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		fsWatcher: fsWatcher,
		logger:    logger,
		debounce:  debounce,
		cancel:    cancel,
	}

	w.wg.Add(1)
	go w.run(runCtx, certDir, onChange)

	return w, nil
}

func (w *Watcher) run(ctx context.Context, certDir string, onChange func(*Store, error)) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				w.schedule(certDir, onChange)
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("ca: watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule(certDir string, onChange func(*Store, error)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, func() {
		store, err := LoadOrInit(certDir, false, false, w.logger)
		onChange(store, err)
	})
}

// Close stops the watcher and releases the underlying filesystem watch.
func (w *Watcher) Close() error {
	w.cancel()

	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()

	w.wg.Wait()
	return w.fsWatcher.Close()
}
