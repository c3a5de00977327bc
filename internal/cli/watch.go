package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 200 * time.Millisecond

// fileWatcher signals when a single file is written, created or renamed into place.
type fileWatcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	debounce  time.Duration
	onChange  chan struct{}
	onError   func(error)
	done      chan struct{}
}

func newFileWatcher(path string, debounce time.Duration, onError func(error)) (*fileWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &fileWatcher{
		fsWatcher: fsw,
		path:      abs,
		debounce:  debounce,
		onChange:  make(chan struct{}, 1),
		onError:   onError,
		done:      make(chan struct{}),
	}, nil
}

// Start watches the directory holding the file, so atomic saves that replace
// it are seen too.
func (w *fileWatcher) Start() (<-chan struct{}, error) {
	dir := filepath.Dir(w.path)
	if err := w.fsWatcher.Add(dir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}

	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *fileWatcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

func (w *fileWatcher) loop() {
	var (
		timer   *time.Timer
		pending bool
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.isRelevantEvent(event) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			pending = true

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if pending {
				// Non-blocking send - drop if a reload is already queued
				select {
				case w.onChange <- struct{}{}:
				default:
				}
				pending = false
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (w *fileWatcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return name == w.path
}

// watchBindings reloads the bindings file on every change until ctx is done.
// A file that fails to load leaves the previous bindings tied.
func (rt *Runtime) watchBindings(ctx context.Context, opts RunOptions) error {
	w, err := newFileWatcher(opts.Config.Bindings, opts.Debounce, func(err error) {
		rt.logger.Warn("Watcher error", "err", err)
	})
	if err != nil {
		return err
	}
	defer w.Stop()

	changes, err := w.Start()
	if err != nil {
		return err
	}

	rt.logger.Info("Watching bindings", "path", opts.Config.Bindings)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			printSystemMessage(opts.out(), "Change detected in '%s'.", opts.Config.Bindings)
			s, err := rt.Open(ctx, opts.Config.Bindings)
			if s == nil {
				rt.logger.Error("Reload failed, keeping previous bindings", "err", err)
				continue
			}
			if opts.OnReload != nil {
				opts.OnReload(s)
			}
		}
	}
}
