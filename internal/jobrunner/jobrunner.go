// Package jobrunner implements the generic CompositeExecutor: a bounded-
// concurrency runner for an arbitrary bag of one-shot jobs, used by the
// Synchronizer's create-remote-root bootstrap (spec.md §4.6, §4.7).
package jobrunner

import (
	"context"
	"log/slog"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"
)

// Policy controls how a CompositeExecutor reacts to a child job's error.
type Policy int

// Policies (spec.md §4.6).
const (
	// StopOnFirstError cancels every running child and refuses to start
	// new ones as soon as one child errors; Wait returns that error.
	StopOnFirstError Policy = iota

	// RunAllJobs always lets every added child run to completion; Wait
	// returns the first error observed, if any.
	RunAllJobs
)

// Job is a one-shot unit of work a CompositeExecutor can run.
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc adapts a plain function to Job.
type JobFunc func(ctx context.Context) error

// Run calls f.
func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }

// CompositeExecutor runs jobs with a bounded concurrency cap. New jobs
// may be added after Start, including while other jobs are in flight
// (used for serialized mkdir of nested remote roots, spec.md §4.6).
type CompositeExecutor struct {
	policy Policy
	logger *slog.Logger

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	firstErr error
	allErrs  error
}

// New returns a CompositeExecutor with the given policy and a
// concurrency cap of maxConcurrency (at least 1).
func New(policy Policy, maxConcurrency int, logger *slog.Logger) *CompositeExecutor {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &CompositeExecutor{
		policy: policy,
		logger: logger,
		sem:    semaphore.NewWeighted(int64(maxConcurrency)),
	}
}

// Start arms the executor against ctx. Must be called once before Add.
func (e *CompositeExecutor) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
}

// Add schedules job to run as soon as a concurrency slot is free. Safe
// to call concurrently with other Add calls and with in-flight jobs;
// must not be called after Wait returns.
func (e *CompositeExecutor) Add(job Job) {
	e.wg.Add(1)

	go func() {
		defer e.wg.Done()

		if err := e.sem.Acquire(e.ctx, 1); err != nil {
			// Context already canceled (stop-on-first-error tripped, or
			// the caller canceled the run); the job never started.
			return
		}
		defer e.sem.Release(1)

		if e.policy == StopOnFirstError && e.ctx.Err() != nil {
			return
		}

		if err := job.Run(e.ctx); err != nil {
			e.recordError(err)

			if e.policy == StopOnFirstError {
				e.cancel()
			}
		}
	}()
}

func (e *CompositeExecutor) recordError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.firstErr == nil {
		e.firstErr = err
	}

	e.allErrs = multierr.Append(e.allErrs, err)

	e.logger.Warn("jobrunner: child job failed", slog.String("error", err.Error()))
}

// Wait blocks until every added job (including ones added after Wait was
// called) has finished, then returns the first error observed across all
// children, or nil. AllErrors returns every observed error regardless of
// policy.
func (e *CompositeExecutor) Wait() error {
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.firstErr
}

// AllErrors returns every child error observed so far, aggregated with
// go.uber.org/multierr, regardless of which one Wait reported first.
func (e *CompositeExecutor) AllErrors() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.allErrs
}

// Stop cancels the run's context, signalling every in-flight job to
// abort and refusing to start any job still waiting on a semaphore slot.
func (e *CompositeExecutor) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}
