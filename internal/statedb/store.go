// Package statedb defines the persistent sync-state database contract and
// its two implementations: a relational store (internal/statedb/
// sqlitestore) and a nested-document store (internal/statedb/docstore).
package statedb

import (
	"context"

	"github.com/foldersync/foldersync/internal/model"
)

// Store is the keyed persistent mapping path -> (mtime, sync-attr) the
// sync engine uses to detect change since the last run.
//
// Every method may fail with a storage-layer error; callers treat that as
// fatal for the run in progress. Open on a non-existent backing file must
// succeed by creating it empty.
type Store interface {
	// Open acquires the underlying storage. Re-opening after a successful
	// Close is the only supported re-open sequence.
	Open(ctx context.Context) error

	// Close releases the underlying storage.
	Close(ctx context.Context) error

	// Put inserts or overwrites the entry at entry.Path.
	Put(ctx context.Context, entry model.SyncStateEntry) error

	// Get performs an exact-match lookup. ok is false if no entry is
	// stored at path.
	Get(ctx context.Context, path string) (entry model.SyncStateEntry, ok bool, err error)

	// Children returns the direct (non-recursive) children of path,
	// excluding path itself.
	Children(ctx context.Context, path string) ([]model.SyncStateEntry, error)

	// DeleteSubtree removes the entry at path and every descendant.
	// Idempotent.
	DeleteSubtree(ctx context.Context, path string) error

	// DeleteOne removes only the entry at path; descendants survive.
	// Used when a directory's own record must be invalidated while a
	// pending recursive sweep is still in flight.
	DeleteOne(ctx context.Context, path string) error

	// Iterate performs a breadth-first walk over the subtree rooted at
	// root, invoking fn on every stored entry found (including root
	// itself if present). Iteration stops at the first error fn returns.
	Iterate(ctx context.Context, root string, fn func(model.SyncStateEntry) error) error
}
