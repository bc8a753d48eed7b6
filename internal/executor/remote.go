package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/foldersync/foldersync/internal/model"
	"github.com/foldersync/foldersync/internal/planner"
	"github.com/foldersync/foldersync/internal/remotejob"
)

// pendingAction is one not-yet-completed Phase B action. exhausted marks
// a DeleteRemote action that gave up its sync-attribute-mismatch retry
// budget: it is never restarted, so it permanently occupies its path's
// queue head (spec.md §4.5's Stuck condition, §8 scenario S6).
type pendingAction struct {
	action    planner.SyncAction
	exhausted bool
}

type remoteOutcome struct {
	path      string
	exhausted bool
	err       error
}

// runRemotePhase drives Phase B's bounded, prefix-ordered scheduler
// (spec.md §4.5). It returns directories whose sync-state entry must be
// captured at end-of-run (successful MkDirRemote), plus the first error
// observed.
func (e *Executor) runRemotePhase(ctx context.Context, actions []planner.SyncAction) ([]deferredDirEntry, error) {
	if len(actions) == 0 {
		return nil, nil
	}

	order := make([]string, 0, len(actions))
	queues := map[string][]*pendingAction{}

	for _, a := range actions {
		if _, ok := queues[a.Path]; !ok {
			order = append(order, a.Path)
		}

		queues[a.Path] = append(queues[a.Path], &pendingAction{action: a})
	}

	inFlight := map[string]*pendingAction{}
	resultsCh := make(chan remoteOutcome)

	var (
		firstErr     error
		deferredDirs []deferredDirEntry
	)

	latch := func(err error) {
		if err == nil {
			return
		}

		if firstErr == nil {
			firstErr = err
		} else {
			e.logger.Warn("executor: additional remote error after first latched", slog.String("error", err.Error()))
		}
	}

	// blockedBy implements spec.md §4.5's ordering predicate plus the
	// bottom-up delete rule its DeleteRemote protocol assumes. A
	// create-like action (anything but DeleteRemote) waits for a
	// pending ancestor DeleteRemote/MkDirRemote to finish, so a
	// recreated child never races the old parent's removal. A
	// DeleteRemote instead waits for any pending DeleteRemote at one of
	// its own descendants, so a directory is never listed for deletion
	// while a leftover child still has a delete outstanding.
	blockedBy := func(target string, kind planner.ActionKind) bool {
		blockedByAncestor := func(p *pendingAction) bool {
			if p.action.Path == target {
				return false
			}

			switch p.action.Kind {
			case planner.ActionDeleteRemote, planner.ActionMkDirRemote:
				return model.IsPrefix(p.action.Path, target)
			default:
				return false
			}
		}

		blockedByDescendant := func(p *pendingAction) bool {
			if p.action.Path == target || p.action.Kind != planner.ActionDeleteRemote {
				return false
			}

			return model.IsPrefix(target, p.action.Path)
		}

		check := blockedByAncestor
		if kind == planner.ActionDeleteRemote {
			check = blockedByDescendant
		}

		for _, q := range queues {
			if len(q) > 0 && check(q[0]) {
				return true
			}
		}

		for _, p := range inFlight {
			if check(p) {
				return true
			}
		}

		return false
	}

	tryStart := func() bool {
		if ctx.Err() != nil {
			return false
		}

		startedAny := false

		for _, path := range order {
			q := queues[path]
			if len(q) == 0 {
				continue
			}

			if _, active := inFlight[path]; active {
				continue
			}

			if len(inFlight) >= e.cfg.RemoteConcurrency {
				break
			}

			head := q[0]
			if head.exhausted {
				continue
			}

			if blockedBy(path, head.action.Kind) {
				continue
			}

			inFlight[path] = head
			startedAny = true

			go e.runRemoteAction(ctx, head.action, resultsCh)
		}

		return startedAny
	}

	remaining := len(actions)

	for remaining > 0 {
		if ctx.Err() != nil && len(inFlight) == 0 {
			latch(ErrStopped)
			break
		}

		started := tryStart()
		if !started && len(inFlight) == 0 {
			latch(fmt.Errorf("%w: no startable action and nothing in flight", ErrStuck))
			break
		}

		if len(inFlight) == 0 {
			continue
		}

		res := <-resultsCh

		p := inFlight[res.path]
		delete(inFlight, res.path)

		q := queues[res.path]

		switch {
		case res.exhausted:
			p.exhausted = true
			// left at the head of its queue forever; not counted as
			// remaining progress since it will never complete.
		case res.err != nil:
			queues[res.path] = q[1:]
			remaining--
			e.completed.Add(1)
			latch(res.err)
		default:
			queues[res.path] = q[1:]
			remaining--
			e.completed.Add(1)

			if res.path != "" && p.action.Kind == planner.ActionMkDirRemote {
				deferredDirs = append(deferredDirs, deferredDirEntry{path: p.action.Path})
			}
		}
	}

	return deferredDirs, firstErr
}

// runRemoteAction dispatches one Phase B action and reports its outcome.
func (e *Executor) runRemoteAction(ctx context.Context, a planner.SyncAction, results chan<- remoteOutcome) {
	var (
		err       error
		exhausted bool
	)

	switch a.Kind {
	case planner.ActionUploadFile:
		err = e.handleUpload(ctx, a)
	case planner.ActionDownloadFile:
		err = e.handleDownload(ctx, a)
	case planner.ActionMkDirRemote:
		err = e.handleMkDirRemote(ctx, a)
	case planner.ActionDeleteRemote:
		exhausted, err = e.handleDeleteRemote(ctx, a)
	default:
		err = fmt.Errorf("executor: %s is not a Phase B action", a.Kind)
	}

	if errors.Is(err, remotejob.ErrServerClosedConnection) && e.cfg.RemoteConcurrency > 1 {
		e.mu.Lock()
		e.retryWithFewerJobs = true
		e.mu.Unlock()
	}

	results <- remoteOutcome{path: a.Path, exhausted: exhausted, err: err}
}

func (e *Executor) handleUpload(ctx context.Context, a planner.SyncAction) error {
	physical := e.physicalPath(a.Path)

	f, err := os.Open(physical)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrOpeningLocalFileFailed, a.Path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrOpeningLocalFileFailed, a.Path, err)
	}

	e.logger.Info("executor: upload", slog.String("path", a.Path), slog.Int64("size", stat.Size()))

	info, err := withNetworkRetry(ctx, func(ctx context.Context) (model.FileInfo, error) {
		if _, seekErr := f.Seek(0, io.SeekStart); seekErr != nil {
			return model.FileInfo{}, seekErr
		}

		return e.factory.UploadFile(ctx, a.Path, f, stat.Size(), a.ExpectedSyncAttr)
	})
	if err != nil {
		if errors.Is(err, remotejob.ErrSyncAttributeMismatch) {
			// The remote changed since planning; under local-wins this
			// branch never fires (empty ExpectedSyncAttr means
			// unconditional write). Under remote-wins it means the
			// remote's newer version should win instead — succeed
			// silently without committing, so the next run downloads it.
			e.logger.Warn("executor: upload lost the race to a newer remote version", slog.String("path", a.Path))
			return nil
		}

		return fmt.Errorf("%w: %s: %v", ErrUploadFailed, a.Path, err)
	}

	entry := model.SyncStateEntry{Path: a.Path, Mtime: a.LocalMtime, SyncAttr: info.SyncAttr, Valid: true}
	if err := e.store.Put(ctx, entry); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSyncStateDatabaseFailed, a.Path, err)
	}

	e.bytes.Add(stat.Size())

	return nil
}

func (e *Executor) handleDownload(ctx context.Context, a planner.SyncAction) error {
	physical := e.physicalPath(a.Path)
	partial := physical + ".partial"

	if err := os.MkdirAll(filepath.Dir(physical), dirPermissions); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWritingLocalFileFailed, a.Path, err)
	}

	e.logger.Info("executor: download", slog.String("path", a.Path))

	info, err := withNetworkRetry(ctx, func(ctx context.Context) (model.FileInfo, error) {
		f, err := os.Create(partial)
		if err != nil {
			return model.FileInfo{}, err
		}
		defer f.Close()

		return e.factory.DownloadFile(ctx, a.Path, f)
	})
	if err != nil {
		os.Remove(partial)
		return fmt.Errorf("%w: %s: %v", ErrDownloadFailed, a.Path, err)
	}

	if err := os.Rename(partial, physical); err != nil {
		os.Remove(partial)
		return fmt.Errorf("%w: renaming %s: %v", ErrWritingLocalFileFailed, a.Path, err)
	}

	attr := info.SyncAttr
	if attr == "" {
		attr = a.ExpectedSyncAttr // fall back to the list-files job's observed value.
	}

	mtime := int64(0)
	if stat, err := os.Stat(physical); err == nil {
		mtime = stat.ModTime().UnixNano()
		e.bytes.Add(stat.Size())
	}

	entry := model.SyncStateEntry{Path: a.Path, Mtime: mtime, SyncAttr: attr, Valid: true}
	if err := e.store.Put(ctx, entry); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSyncStateDatabaseFailed, a.Path, err)
	}

	return nil
}

func (e *Executor) handleMkDirRemote(ctx context.Context, a planner.SyncAction) error {
	e.logger.Info("executor: remote mkdir", slog.String("path", a.Path))

	_, err := withNetworkRetry(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.factory.CreateDirectory(ctx, a.Path)
	})
	if err != nil && !errors.Is(err, remotejob.ErrFolderExists) {
		return fmt.Errorf("%w: %s: %v", ErrFailedCreatingRemoteFolder, a.Path, err)
	}

	return nil
}

// handleDeleteRemote implements the DeleteRemote protocol (spec.md
// §4.5): list-before-delete, already-absent success, and a bounded
// sync-attribute-mismatch retry loop. exhausted is true when that retry
// budget ran out — the caller leaves the action queued forever rather
// than completing it, which is what produces Stuck when nothing else
// can make progress (spec.md §8 scenario S6).
func (e *Executor) handleDeleteRemote(ctx context.Context, a planner.SyncAction) (exhausted bool, err error) {
	if a.PathKind == model.KindDirectory {
		res, err := withNetworkRetry(ctx, func(ctx context.Context) (remotejob.ListResult, error) {
			return e.factory.ListFiles(ctx, a.Path, remotejob.ListOptions{})
		})
		if err != nil {
			if errors.Is(err, remotejob.ErrResourceNotFound) {
				return false, e.store.DeleteSubtree(ctx, a.Path)
			}

			return false, fmt.Errorf("%w: listing %s: %v", ErrFailedDeletingRemote, a.Path, err)
		}

		if len(res.Children) > 0 {
			return false, fmt.Errorf("%w: %s is not empty", ErrFailedDeletingRemote, a.Path)
		}
	}

	expected := a.PrevEntry.SyncAttr

	var lastMismatch error

	for attempt := 0; attempt <= e.cfg.MaxDeleteRetries; attempt++ {
		_, err := withNetworkRetry(ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, e.factory.Delete(ctx, a.Path, expected)
		})

		switch {
		case err == nil:
			if dbErr := e.store.DeleteSubtree(ctx, a.Path); dbErr != nil {
				return false, fmt.Errorf("%w: %s: %v", ErrSyncStateDatabaseFailed, a.Path, dbErr)
			}

			return false, nil

		case errors.Is(err, remotejob.ErrResourceNotFound):
			if dbErr := e.store.DeleteSubtree(ctx, a.Path); dbErr != nil {
				return false, fmt.Errorf("%w: %s: %v", ErrSyncStateDatabaseFailed, a.Path, dbErr)
			}

			return false, nil

		case errors.Is(err, remotejob.ErrSyncAttributeMismatch):
			lastMismatch = err

			if attempt < e.cfg.MaxDeleteRetries {
				select {
				case <-time.After(deleteRetryWait):
				case <-ctx.Done():
					return false, ctx.Err()
				}

				continue
			}

			e.logger.Warn("executor: delete retries exhausted on sync-attribute mismatch",
				slog.String("path", a.Path))

			return true, lastMismatch

		default:
			return false, fmt.Errorf("%w: %s: %v", ErrFailedDeletingRemote, a.Path, err)
		}
	}

	return true, lastMismatch
}

// withNetworkRetry wraps a remote call with the backend-suggested-delay
// backoff of spec.md §5: an initial delay multiplied by 1.2 per
// attempt, retried only for NetworkRequestFailed.
func withNetworkRetry[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	backoff := &multiplierBackoff{
		next:   networkRetryInitialDelay,
		factor: networkRetryFactor,
		max:    networkRetryMaxAttempts,
	}

	var result T

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error

		result, err = fn(ctx)
		if err != nil && errors.Is(err, remotejob.ErrNetworkRequestFailed) {
			return retry.RetryableError(err)
		}

		return err
	})

	return result, err
}

// multiplierBackoff implements retry.Backoff with a fixed growth factor
// per attempt, rather than go-retry's built-in exponential-by-2 curve.
type multiplierBackoff struct {
	next   time.Duration
	factor float64
	max    int

	attempts int
}

func (b *multiplierBackoff) Next() (time.Duration, bool) {
	if b.attempts >= b.max {
		return 0, false
	}

	d := b.next
	b.next = time.Duration(float64(b.next) * b.factor)
	b.attempts++

	return d, true
}
