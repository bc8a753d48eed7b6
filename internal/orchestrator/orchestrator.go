// Package orchestrator implements the Synchronizer state machine of
// spec.md §4.7: a single-run pipeline tying together the sync-state
// database, both change trees, the planner, and the executor.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foldersync/foldersync/internal/changetree"
	"github.com/foldersync/foldersync/internal/conflictlog"
	"github.com/foldersync/foldersync/internal/executor"
	"github.com/foldersync/foldersync/internal/hashcache"
	"github.com/foldersync/foldersync/internal/jobrunner"
	"github.com/foldersync/foldersync/internal/model"
	"github.com/foldersync/foldersync/internal/planner"
	"github.com/foldersync/foldersync/internal/remotejob"
	"github.com/foldersync/foldersync/internal/statedb"
)

// State is one of the Synchronizer's lifecycle states (spec.md §4.7).
type State int

// States of the Ready -> Running -> Finished state machine.
const (
	StateReady State = iota
	StateRunning
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	default:
		return "ready"
	}
}

// SynchronizerFlags are the named boolean toggles spec.md §9 describes as
// a bitset, rendered as explicit fields instead.
type SynchronizerFlags struct {
	// CreateRemoteRootOnFirstSync runs the bootstrap mkdir sequence
	// (spec.md §4.7 step 3) the first time this remote root is synced.
	CreateRemoteRootOnFirstSync bool

	// AlwaysRecurseFolders forces the folder-sync-attribute remote
	// builder to descend into every folder regardless of its
	// sync-attribute, for backends that don't propagate subtree
	// changes up to ancestor attributes (spec.md §4.3).
	AlwaysRecurseFolders bool

	// HashOnMtimeMismatch resolves an mtime-only difference by content
	// hash before treating a local file as changed (spec.md §9). Only
	// takes effect when Config.HashCachePath is also set.
	HashOnMtimeMismatch bool
}

// Config configures a Synchronizer for one remote root's lifetime.
type Config struct {
	LocalRoot  string
	RemoteRoot string

	Strategy planner.ConflictStrategy
	Filter   changetree.Filter

	Flags SynchronizerFlags

	ListParallelism int
	ExecutorConfig  executor.Config

	// HashCachePath, when non-empty, is where the per-path content-hash
	// cache for SynchronizerFlags.HashOnMtimeMismatch is persisted
	// across runs (internal/hashcache).
	HashCachePath string

	// ConflictLedgerPath, when non-empty, is where every impossible
	// change combination this Synchronizer's runs hit is appended
	// (internal/conflictlog, spec.md §9 "Conflict ledger").
	ConflictLedgerPath string

	Logger *slog.Logger
}

func (c Config) validate() error {
	if c.LocalRoot == "" {
		return fmt.Errorf("%w: LocalRoot", ErrMissingParameter)
	}

	if c.Strategy == nil {
		return fmt.Errorf("%w: Strategy", ErrMissingParameter)
	}

	if c.RemoteRoot != "" && model.Canon(c.RemoteRoot) != c.RemoteRoot {
		return fmt.Errorf("%w: RemoteRoot %q is not canonical", ErrInvalidParameter, c.RemoteRoot)
	}

	return nil
}

// RunResult summarizes one completed (or failed) run.
type RunResult struct {
	RunID    string
	Actions  int
	Duration time.Duration

	// RetryWithFewerJobs mirrors executor.Executor.RetryWithFewerJobs:
	// the backend reported ServerClosedConnection while more than one
	// remote action was in flight (spec.md §7).
	RetryWithFewerJobs bool

	// Conflicts lists every impossible change combination the planner
	// hit this run (spec.md §9 "Conflict ledger"). Callers decide how
	// to persist or surface these; the Synchronizer itself only
	// collects them.
	Conflicts []planner.Conflict

	// BytesTransferred sums every uploaded or downloaded file's size
	// this run, for a human-readable run summary.
	BytesTransferred int64
}

// Synchronizer runs one remote root's sync pipeline (spec.md §4.7):
// validate -> open DB -> bootstrap -> build trees -> plan -> execute ->
// commit -> close. A Synchronizer is reusable across runs but only one
// run may be in flight at a time.
type Synchronizer struct {
	store   statedb.Store
	factory remotejob.JobFactory
	cfg     Config
	logger  *slog.Logger

	mu    sync.Mutex
	state State
	exec  *executor.Executor
}

// New returns a Synchronizer for store and factory. cfg is validated
// lazily, at the start of every Run call, matching the teacher's
// validate-at-use-time idiom.
func New(store statedb.Store, factory remotejob.JobFactory, cfg Config) *Synchronizer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Flags.AlwaysRecurseFolders {
		factory = alwaysRecurseFactory{JobFactory: factory, always: true}
	}

	return &Synchronizer{
		store:   store,
		factory: factory,
		cfg:     cfg,
		logger:  logger,
		state:   StateReady,
	}
}

// State reports the Synchronizer's current lifecycle state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Progress delegates to the in-flight executor's progress value, or -1
// when no run has started planning yet (spec.md §4.5 "Progress").
func (s *Synchronizer) Progress() int {
	s.mu.Lock()
	exec := s.exec
	s.mu.Unlock()

	if exec == nil {
		return -1
	}

	return exec.Progress()
}

// Stop requests cancellation of the in-flight run. A no-op if no run is
// in progress.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	exec := s.exec
	s.mu.Unlock()

	if exec != nil {
		exec.Stop()
	}
}

// Run executes one complete sync cycle. It returns ErrAlreadyRunning if
// called while a previous Run on this Synchronizer is still in flight.
func (s *Synchronizer) Run(ctx context.Context) (*RunResult, error) {
	s.mu.Lock()
	if s.state == StateRunning {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	s.state = StateRunning
	s.mu.Unlock()

	runID := uuid.NewString()
	logger := s.logger.With(slog.String("run_id", runID))

	defer func() {
		s.mu.Lock()
		s.state = StateFinished
		s.exec = nil
		s.mu.Unlock()
	}()

	start := time.Now()

	result, err := s.run(ctx, runID, start, logger)
	if result != nil {
		result.Duration = time.Since(start)
	}

	return result, err
}

// run is Run's body, split out so Run can keep the state-machine
// bookkeeping (locking, deferred StateFinished transition) separate from
// the step-1-through-7 pipeline of spec.md §4.7.
func (s *Synchronizer) run(ctx context.Context, runID string, start time.Time, logger *slog.Logger) (*RunResult, error) {
	// Step 1: validate required inputs.
	if err := s.cfg.validate(); err != nil {
		return nil, err
	}

	logger.Info("sync run starting",
		slog.String("local_root", s.cfg.LocalRoot),
		slog.String("strategy", s.cfg.Strategy.Name()))

	// Step 2: open the sync-state DB.
	if err := s.store.Open(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedOpeningSyncStateDatabase, err)
	}

	closeErr := func() error {
		if err := s.store.Close(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrFailedClosingSyncStateDatabase, err)
		}

		return nil
	}

	// Step 3: first-sync bootstrap.
	if s.cfg.Flags.CreateRemoteRootOnFirstSync {
		bootstrapped, err := s.bootstrapRemoteRoot(ctx, logger)
		if err != nil {
			_ = closeErr()
			return nil, err
		}

		if bootstrapped {
			logger.Info("bootstrapped remote root", slog.String("remote_root", s.cfg.RemoteRoot))
		}
	}

	// Step 4: build both change trees.
	var localOpts []changetree.LocalOption

	var (
		hashes map[string]string
		err    error
	)

	if s.cfg.Flags.HashOnMtimeMismatch && s.cfg.HashCachePath != "" {
		hashes, err = hashcache.Load(s.cfg.HashCachePath)
		if err != nil {
			_ = closeErr()
			return nil, err
		}

		localOpts = append(localOpts, changetree.WithHashOnMtimeMismatch(hashes))
	}

	localTree, err := changetree.BuildLocal(ctx, s.cfg.LocalRoot, s.store, s.cfg.Filter, localOpts...)
	if err != nil {
		_ = closeErr()
		return nil, err
	}

	if hashes != nil {
		if err := hashcache.Save(s.cfg.HashCachePath, hashes); err != nil {
			logger.Warn("failed saving hash cache", slog.String("error", err.Error()))
		}
	}

	remoteTree, nextCursor, err := changetree.BuildRemote(ctx, s.factory, s.store, s.cfg.Filter, s.cfg.ListParallelism)
	if err != nil {
		_ = closeErr()
		return nil, fmt.Errorf("%w: %v", ErrFailedListingRemoteFolder, err)
	}

	// Step 5: merge trees into an action list, collecting any
	// impossible change combinations the planner hits along the way.
	var conflicts []planner.Conflict

	actions, err := planner.Plan(ctx, s.store, localTree, remoteTree, s.cfg.Strategy, logger,
		planner.WithConflictSink(func(c planner.Conflict) { conflicts = append(conflicts, c) }))
	if err != nil {
		_ = closeErr()
		return nil, err
	}

	result := &RunResult{RunID: runID, Actions: len(actions), Conflicts: conflicts}

	if s.cfg.ConflictLedgerPath != "" {
		if err := conflictlog.Append(s.cfg.ConflictLedgerPath, runID, start, conflicts); err != nil {
			logger.Warn("failed appending conflict ledger", slog.String("error", err.Error()))
		}
	}

	// Step 6: execute local actions, then remote actions.
	exec := executor.New(s.store, s.factory, s.cfg.LocalRoot, s.cfg.ExecutorConfig, logger)

	s.mu.Lock()
	s.exec = exec
	s.mu.Unlock()

	runErr := exec.Run(ctx, actions)
	result.RetryWithFewerJobs = exec.RetryWithFewerJobs()
	result.BytesTransferred = exec.BytesTransferred()

	// Step 7: commit the remote-stream cursor (root-stream-cursor
	// backends only) and close the DB, regardless of runErr — later
	// errors are logged only, matching spec.md §7's first-error latch.
	if nextCursor != "" {
		if err := s.store.Put(ctx, model.SyncStateEntry{Path: model.RootMarkerPath, SyncAttr: nextCursor, Valid: true}); err != nil {
			logger.Warn("failed committing remote cursor", slog.String("error", err.Error()))

			if runErr == nil {
				runErr = fmt.Errorf("%w: committing cursor: %v", executor.ErrSyncStateDatabaseFailed, err)
			}
		}
	}

	if err := closeErr(); err != nil {
		logger.Warn("failed closing sync-state database", slog.String("error", err.Error()))

		if runErr == nil {
			runErr = err
		}
	}

	if runErr != nil {
		return result, runErr
	}

	logger.Info("sync run complete",
		slog.Int("actions", len(actions)),
		slog.Duration("duration", time.Since(start)))

	return result, nil
}

// bootstrapRemoteRoot implements spec.md §4.7 step 3: the first time this
// remote root is synced, create every path-prefix component in sequence
// (ignoring already-exists), then write a stub root entry so later runs
// skip this step. Returns whether it actually ran the bootstrap.
func (s *Synchronizer) bootstrapRemoteRoot(ctx context.Context, logger *slog.Logger) (bool, error) {
	if _, known, err := s.store.Get(ctx, model.RootMarkerPath); err != nil {
		return false, fmt.Errorf("%w: checking root marker: %v", ErrFailedOpeningSyncStateDatabase, err)
	} else if known {
		return false, nil
	}

	root := s.cfg.RemoteRoot
	if root == "" {
		root = "/"
	}

	runner := jobrunner.New(jobrunner.StopOnFirstError, 1, logger)
	runner.Start(ctx)

	for _, prefix := range pathPrefixes(root) {
		runner.Add(jobrunner.JobFunc(func(ctx context.Context) error {
			if err := s.factory.CreateDirectory(ctx, prefix); err != nil && !errors.Is(err, remotejob.ErrFolderExists) {
				return fmt.Errorf("%w: %s: %v", ErrFailedCreatingRemoteRoot, prefix, err)
			}

			return nil
		}))
	}

	if err := runner.Wait(); err != nil {
		return false, err
	}

	if err := s.store.Put(ctx, model.SyncStateEntry{Path: model.RootMarkerPath, Valid: true}); err != nil {
		return false, fmt.Errorf("%w: writing root marker: %v", ErrFailedOpeningSyncStateDatabase, err)
	}

	return true, nil
}

// pathPrefixes splits a canonical path into its sequence of ancestor
// directories in root-to-leaf order, e.g. "/a/b/c" -> ["/a", "/a/b",
// "/a/b/c"]. "/" yields a single-element slice, ["/"].
func pathPrefixes(path string) []string {
	path = model.Canon(path)
	if path == "/" {
		return []string{"/"}
	}

	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")

	prefixes := make([]string, 0, len(segments))
	cur := ""

	for _, seg := range segments {
		cur = cur + "/" + seg
		prefixes = append(prefixes, cur)
	}

	return prefixes
}

// alwaysRecurseFactory overrides a wrapped JobFactory's AlwaysRecurse
// when the Synchronizer's own flag requests it, without requiring every
// backend to expose a settable field for what is purely a sync-policy
// choice.
type alwaysRecurseFactory struct {
	remotejob.JobFactory
	always bool
}

func (f alwaysRecurseFactory) AlwaysRecurse() bool {
	return f.always || f.JobFactory.AlwaysRecurse()
}
