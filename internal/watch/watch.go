// Package watch monitors a local sync root for filesystem activity and
// coalesces it into discrete sync triggers. It never diffs or replicates
// content itself; that is internal/changetree and internal/planner's job
// every time a trigger actually runs.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Constants governing debounce and the fallback safety poll.
const (
	DefaultDebounce       = 2 * time.Second
	DefaultSafetyInterval = 5 * time.Minute
)

// ErrRootMissing is returned by Run if the sync root does not exist when
// Run starts. A root removed while being watched is not detected.
var ErrRootMissing = errors.New("watch: sync root missing")

// FsWatcher abstracts filesystem event monitoring. Satisfied by
// *fsnotify.Watcher; tests inject a mock implementation.
type FsWatcher interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWrapper struct {
	w *fsnotify.Watcher
}

func (fw *fsnotifyWrapper) Add(name string) error         { return fw.w.Add(name) }
func (fw *fsnotifyWrapper) Remove(name string) error      { return fw.w.Remove(name) }
func (fw *fsnotifyWrapper) Close() error                  { return fw.w.Close() }
func (fw *fsnotifyWrapper) Events() <-chan fsnotify.Event { return fw.w.Events }
func (fw *fsnotifyWrapper) Errors() <-chan error          { return fw.w.Errors }

// TriggerFunc runs one discrete sync cycle (typically Synchronizer.Run,
// adapted to this signature by the caller).
type TriggerFunc func(context.Context) error

// Config tunes a Watcher's debounce and fallback behavior.
type Config struct {
	// Debounce is how long the watcher waits after the last observed
	// event before calling TriggerFunc. Zero uses DefaultDebounce.
	Debounce time.Duration

	// SafetyInterval, if non-zero, triggers a sync on this cadence
	// regardless of fsnotify activity, catching any events fsnotify
	// missed (brief watcher gaps, platform edge cases). Zero uses
	// DefaultSafetyInterval; negative disables it.
	SafetyInterval time.Duration

	// Ignore, if set, reports whether a directory entry name should be
	// excluded from both watching and triggering. Defaults to
	// defaultIgnore.
	Ignore func(name string) bool
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}

	if c.SafetyInterval == 0 {
		c.SafetyInterval = DefaultSafetyInterval
	}

	if c.Ignore == nil {
		c.Ignore = defaultIgnore
	}

	return c
}

// Watcher watches one local directory tree and calls a TriggerFunc each
// time activity settles, plus on a periodic safety cadence.
type Watcher struct {
	root   string
	cfg    Config
	logger *slog.Logger

	watcherFactory func() (FsWatcher, error)
}

// New returns a Watcher rooted at root.
func New(root string, cfg Config, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		root:   root,
		cfg:    cfg.withDefaults(),
		logger: logger,
		watcherFactory: func() (FsWatcher, error) {
			w, err := fsnotify.NewWatcher()
			if err != nil {
				return nil, err
			}

			return &fsnotifyWrapper{w: w}, nil
		},
	}
}

// Run watches the root until ctx is canceled, calling trigger after each
// settled burst of activity and on the safety cadence. It blocks;
// returns nil on clean context cancellation.
func (w *Watcher) Run(ctx context.Context, trigger TriggerFunc) error {
	w.logger.Info("watch starting", slog.String("root", w.root))

	if _, err := os.Stat(w.root); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrRootMissing, w.root)
	}

	watcher, err := w.watcherFactory()
	if err != nil {
		return fmt.Errorf("watch: creating filesystem watcher: %w", err)
	}
	defer watcher.Close()

	if err := w.addWatchesRecursive(watcher, w.root); err != nil {
		return fmt.Errorf("watch: adding initial watches: %w", err)
	}

	return w.loop(ctx, watcher, trigger)
}

func (w *Watcher) addWatchesRecursive(watcher FsWatcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			w.logger.Warn("walk error while adding watches",
				slog.String("path", path), slog.String("error", walkErr.Error()))

			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if path != root && w.cfg.Ignore(d.Name()) {
			return filepath.SkipDir
		}

		if err := watcher.Add(path); err != nil {
			w.logger.Warn("failed to add watch", slog.String("path", path), slog.String("error", err.Error()))
		}

		return nil
	})
}

// loop is the event pump: it debounces fsnotify activity, fires the
// safety cadence, and calls trigger exactly once per settled burst.
func (w *Watcher) loop(ctx context.Context, watcher FsWatcher, trigger TriggerFunc) error {
	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}

	var safety *time.Ticker

	var safetyC <-chan time.Time

	if w.cfg.SafetyInterval > 0 {
		safety = time.NewTicker(w.cfg.SafetyInterval)
		defer safety.Stop()

		safetyC = safety.C
	}

	pending := false

	fire := func(reason string) {
		w.logger.Debug("watch triggering sync", slog.String("reason", reason))

		if err := trigger(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("triggered sync failed", slog.String("error", err.Error()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}

			w.handleEvent(watcher, ev)

			if w.cfg.Ignore(filepath.Base(ev.Name)) {
				continue
			}

			pending = true

			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}

			debounce.Reset(w.cfg.Debounce)

		case err, ok := <-watcher.Errors():
			if !ok {
				return nil
			}

			w.logger.Warn("watch error", slog.String("error", err.Error()))

		case <-debounce.C:
			if pending {
				pending = false
				fire("debounced fsnotify activity")
			}

		case <-safetyC:
			fire("safety interval")
		}
	}
}

// handleEvent reacts to structural changes a sync trigger alone can't:
// a newly created directory needs its own watch added, a removed one
// needs its watch released (fsnotify errors internally otherwise).
func (w *Watcher) handleEvent(watcher FsWatcher, ev fsnotify.Event) {
	switch {
	case ev.Op&fsnotify.Create != 0:
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}

		if info.IsDir() && !w.cfg.Ignore(filepath.Base(ev.Name)) {
			if err := w.addWatchesRecursive(watcher, ev.Name); err != nil {
				w.logger.Warn("failed adding watch for new directory",
					slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
		}

	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		_ = watcher.Remove(ev.Name)
	}
}

// defaultIgnore excludes dotfiles/dotdirs (VCS metadata, editor state)
// and common editor temp/backup patterns from both watching and
// trigger-worthy events.
func defaultIgnore(name string) bool {
	if name == "" || name == "." || name == ".." {
		return true
	}

	if strings.HasPrefix(name, ".") {
		return true
	}

	if strings.HasPrefix(name, "~") {
		return true
	}

	lower := strings.ToLower(name)

	for _, suffix := range []string{".tmp", ".swp", ".partial", ".crdownload"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}

	return false
}
