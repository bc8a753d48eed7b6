// Package executor runs a planned action list against the local
// filesystem and a remote job factory (spec.md §4.5): Phase A executes
// local mkdir/delete sequentially with immediate DB commits, Phase B
// runs remote actions under a bounded, prefix-ordered scheduler.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foldersync/foldersync/internal/model"
	"github.com/foldersync/foldersync/internal/planner"
	"github.com/foldersync/foldersync/internal/remotejob"
	"github.com/foldersync/foldersync/internal/statedb"
)

// Defaults for Config fields left at zero (spec.md §4.5).
const (
	DefaultRemoteConcurrency = 12
	DefaultMaxDeleteRetries  = 5

	dirPermissions  = 0o755
	deleteRetryWait = 200 * time.Millisecond

	networkRetryInitialDelay = 5 * time.Second
	networkRetryFactor       = 1.2
	networkRetryMaxAttempts  = 5
)

// Config tunes an Executor's concurrency and retry behavior.
type Config struct {
	// RemoteConcurrency caps Phase B's in-flight remote actions. 1
	// forces sequential execution. Zero uses DefaultRemoteConcurrency.
	RemoteConcurrency int

	// MaxDeleteRetries bounds DeleteRemote's sync-attribute-mismatch
	// retry loop. Zero uses DefaultMaxDeleteRetries.
	MaxDeleteRetries int
}

func (c Config) withDefaults() Config {
	if c.RemoteConcurrency < 1 {
		c.RemoteConcurrency = DefaultRemoteConcurrency
	}

	if c.MaxDeleteRetries < 1 {
		c.MaxDeleteRetries = DefaultMaxDeleteRetries
	}

	return c
}

// Executor runs one sync run's planned actions.
type Executor struct {
	store     statedb.Store
	factory   remotejob.JobFactory
	localRoot string
	cfg       Config
	logger    *slog.Logger

	mu                 sync.Mutex
	retryWithFewerJobs bool
	cancel             context.CancelFunc
	stoppedByUser      bool

	total     atomic.Int64
	completed atomic.Int64
	bytes     atomic.Int64
}

// BytesTransferred returns the cumulative size of every file uploaded or
// downloaded so far this run, for a human-readable run summary.
func (e *Executor) BytesTransferred() int64 {
	return e.bytes.Load()
}

// New returns an Executor rooted at localRoot, driving factory's remote
// operations and committing outcomes to store.
func New(store statedb.Store, factory remotejob.JobFactory, localRoot string, cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		store:     store,
		factory:   factory,
		localRoot: localRoot,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// Progress reports 100*(total-pending)/total, or -1 before Run's plan
// is known (spec.md §4.5 "Progress").
func (e *Executor) Progress() int {
	total := e.total.Load()
	if total == 0 {
		return -1
	}

	completed := e.completed.Load()

	return int(100 * completed / total)
}

// RetryWithFewerJobs reports whether a job reported ServerClosedConnection
// while running with more than one concurrent remote action (spec.md §7).
func (e *Executor) RetryWithFewerJobs() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.retryWithFewerJobs
}

// Stop requests cancellation: no further actions start, in-flight ones
// are told to abort, and Run returns once they drain. Idempotent.
func (e *Executor) Stop() {
	e.mu.Lock()
	e.stoppedByUser = true
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// deferredDirEntry is a directory whose sync-state entry is written only
// once its remote sync-attribute is known at end-of-run (spec.md §4.5
// "MkDirLocal defers the entry write...").
type deferredDirEntry struct {
	path string
}

// Run executes actions in plan order: Phase A (local, sequential) then
// Phase B (remote, bounded and prefix-ordered). It returns the first
// sync-level error observed, if any; later errors are logged only.
func (e *Executor) Run(ctx context.Context, actions []planner.SyncAction) error {
	runCtx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	defer cancel()

	e.total.Store(int64(len(actions)))
	e.completed.Store(0)

	var local, remote []planner.SyncAction

	for _, a := range actions {
		switch a.Kind {
		case planner.ActionMkDirLocal, planner.ActionDeleteLocal:
			local = append(local, a)
		default:
			remote = append(remote, a)
		}
	}

	var firstErr error

	latch := func(err error) {
		if err == nil {
			return
		}

		if firstErr == nil {
			firstErr = err
		} else {
			e.logger.Warn("executor: additional error after first latched", slog.String("error", err.Error()))
		}
	}

	var deferredDirs []deferredDirEntry

	for _, a := range local {
		dir, err := e.runLocalAction(runCtx, a)
		e.completed.Add(1)
		latch(err)

		if dir != nil {
			deferredDirs = append(deferredDirs, *dir)
		}
	}

	remoteDeferred, remoteErr := e.runRemotePhase(runCtx, remote)
	deferredDirs = append(deferredDirs, remoteDeferred...)
	latch(remoteErr)

	if err := e.commitDeferredDirs(ctx, deferredDirs); err != nil {
		latch(err)
	}

	e.mu.Lock()
	stoppedByUser := e.stoppedByUser
	e.mu.Unlock()

	if firstErr == nil && stoppedByUser {
		return ErrStopped
	}

	return firstErr
}

// runLocalAction performs one Phase A action. It returns a non-nil
// deferredDirEntry for a successful MkDirLocal (its entry is written at
// end-of-run), and commits DeleteLocal immediately.
func (e *Executor) runLocalAction(ctx context.Context, a planner.SyncAction) (*deferredDirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	physical := e.physicalPath(a.Path)

	switch a.Kind {
	case planner.ActionMkDirLocal:
		e.logger.Info("executor: local mkdir", slog.String("path", a.Path))

		if err := os.MkdirAll(physical, dirPermissions); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrFailedCreatingLocalFolder, a.Path, err)
		}

		return &deferredDirEntry{path: a.Path}, nil

	case planner.ActionDeleteLocal:
		e.logger.Info("executor: local delete", slog.String("path", a.Path))

		var err error
		if a.PathKind == model.KindDirectory {
			err = os.RemoveAll(physical)
		} else {
			err = os.Remove(physical)
			if errors.Is(err, os.ErrNotExist) {
				err = nil
			}
		}

		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrFailedDeletingLocal, a.Path, err)
		}

		if err := e.store.DeleteSubtree(ctx, a.Path); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrSyncStateDatabaseFailed, a.Path, err)
		}

		return nil, nil

	default:
		return nil, fmt.Errorf("executor: %s is not a Phase A action", a.Kind)
	}
}

// commitDeferredDirs refreshes each deferred directory's current remote
// sync-attribute and writes its sync-state entry (spec.md §4.7 step 7).
func (e *Executor) commitDeferredDirs(ctx context.Context, dirs []deferredDirEntry) error {
	var firstErr error

	for _, d := range dirs {
		info, err := withNetworkRetry(ctx, func(ctx context.Context) (model.FileInfo, error) {
			return e.factory.GetFileInfo(ctx, d.path)
		})
		if err != nil {
			e.logger.Warn("executor: failed capturing directory sync-attribute",
				slog.String("path", d.path), slog.String("error", err.Error()))

			if firstErr == nil {
				firstErr = fmt.Errorf("%w: capturing %s: %v", ErrSyncStateDatabaseFailed, d.path, err)
			}

			continue
		}

		mtime := int64(0)
		if stat, err := os.Stat(e.physicalPath(d.path)); err == nil {
			mtime = stat.ModTime().UnixNano()
		}

		entry := model.SyncStateEntry{Path: d.path, Mtime: mtime, SyncAttr: info.SyncAttr, Valid: true}
		if err := e.store.Put(ctx, entry); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: writing %s: %v", ErrSyncStateDatabaseFailed, d.path, err)
			}
		}
	}

	return firstErr
}

func (e *Executor) physicalPath(canonPath string) string {
	if canonPath == "/" {
		return e.localRoot
	}

	return filepath.Join(e.localRoot, filepath.FromSlash(canonPath))
}
