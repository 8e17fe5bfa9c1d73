package ingestion

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last file event
// before starting a run.
const DefaultDebounce = 2 * time.Second

// Watcher re-runs a pipeline whenever transcripts under its roots change.
type Watcher struct {
	pipeline *Pipeline
	roots    []string
	debounce time.Duration
	onRun    func(*RunSummary, error)
	logger   *slog.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a run starts.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithRunHook is called after every run with its summary and error.
func WithRunHook(fn func(*RunSummary, error)) WatcherOption {
	return func(w *Watcher) {
		w.onRun = fn
	}
}

// NewWatcher creates a watcher for roots.
func NewWatcher(p *Pipeline, roots []string, opts ...WatcherOption) (*Watcher, error) {
	if p == nil {
		return nil, errors.New("pipeline required")
	}
	if len(roots) == 0 {
		return nil, ErrNoRoots
	}
	w := &Watcher{
		pipeline: p,
		roots:    roots,
		debounce: DefaultDebounce,
		logger:   p.logger.With("component", "watcher"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch runs the pipeline once, then again after every burst of relevant
// file events, until ctx is done. Runs never overlap. A fatal run error stops
// watching and is returned.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	for _, root := range w.roots {
		if err := w.addTree(fw, root); err != nil {
			return err
		}
	}

	if err := w.run(ctx); err != nil {
		return err
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				w.watchIfDir(fw, event.Name)
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("change detected", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := w.run(ctx); err != nil {
				return err
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "err", err)
		}
	}
}

// run executes one pipeline run. Cancellation is not an error.
func (w *Watcher) run(ctx context.Context) error {
	summary, err := w.pipeline.Run(ctx, w.roots)
	if w.onRun != nil {
		w.onRun(summary, err)
	}
	if err == nil || ctx.Err() != nil {
		return nil
	}
	if summary != nil && summary.Aborted {
		return err
	}
	w.logger.Warn("run finished with error", "err", err)
	return nil
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(event.Name)
	if name == IgnoreFileName {
		return true
	}
	if strings.HasPrefix(name, ".") {
		return false
	}
	return w.pipeline.Scanner().Matches(event.Name)
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

func (w *Watcher) watchIfDir(fw *fsnotify.Watcher, path string) {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}
	if err := w.addTree(fw, path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.logger.Debug("cannot watch new path", "path", path, "err", err)
	}
}
