package render

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates a Renderer's cache when files in the override directory
// change. Bursts of events (editors write several times per save) collapse
// into one invalidation after the debounce delay.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	renderer  *Renderer
	debounce  time.Duration
	logger    *log.Logger
	reloaded  chan struct{}
	done      chan struct{}
}

// NewWatcher watches dir on behalf of r.
func NewWatcher(r *Renderer, dir string, debounce time.Duration, logger *log.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch template dir %s: %w", dir, err)
	}
	w := &Watcher{
		fsWatcher: fsw,
		renderer:  r,
		debounce:  debounce,
		logger:    logger,
		reloaded:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Reloaded receives a value after each invalidation. Sends are dropped when
// nobody is listening.
func (w *Watcher) Reloaded() <-chan struct{} {
	return w.reloaded
}

// Stop terminates the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

func (w *Watcher) loop() {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
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
			fire = timer.C
		case <-fire:
			fire = nil
			w.renderer.Invalidate()
			w.logger.Info("templates reloaded")
			select {
			case w.reloaded <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("template watcher error", "err", err)
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}
