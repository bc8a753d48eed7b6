// Package remotejob defines the minimal operation set the sync executor
// requires of any backend (spec.md §6): six one-shot operations plus the
// change-detection mode a concrete backend declares.
//
// Each operation is exposed as a plain blocking method on JobFactory,
// taking a context for cancellation. The source design (design note §9,
// spec.md) describes three equivalent shapes for "runs once, completes
// once": a completion callback, a one-shot channel/promise, or an async
// task. In Go the natural rendering of all three is a blocking call
// invoked from a goroutine the caller already manages (the executor's
// bounded worker pool) — no callback indirection is needed.
package remotejob

import (
	"context"
	"io"

	"github.com/foldersync/foldersync/internal/model"
)

// ChangeMode identifies how a backend's ChangeTree builder should detect
// change: by comparing folder sync-attributes level by level, or by
// consuming a single root-level stream of changes since a cursor.
type ChangeMode int

// Change-detection modes (spec.md §3, §4.3, §6).
const (
	ModeFolderSyncAttr ChangeMode = iota
	ModeRootStreamCursor
)

func (m ChangeMode) String() string {
	if m == ModeRootStreamCursor {
		return "root-stream-cursor"
	}

	return "folder-sync-attribute"
}

// ListOptions configures a ListFiles call.
type ListOptions struct {
	// Recursive asks a folder-sync-attribute backend to list an entire
	// subtree in one call, when supported.
	Recursive bool

	// Cursor is the opaque token from a previous ListFiles call, used by
	// root-stream-cursor backends to request only changes since then.
	// Empty means "from the beginning."
	Cursor string
}

// ListResult is what ListFiles returns: the folder's own metadata, its
// children (direct, or full subtree when Recursive is honored), and an
// optional cursor for the next incremental call.
type ListResult struct {
	Folder     model.FileInfo
	Children   []model.FileInfo
	NextCursor string
}

// JobFactory produces the six operations a backend must support, and
// declares how its ChangeTree builder should detect change.
type JobFactory interface {
	// ChangeMode reports which remote ChangeTree builder strategy this
	// backend requires.
	ChangeMode() ChangeMode

	// AlwaysRecurse forces the folder-sync-attribute builder to descend
	// even when a folder's own sync-attribute is unchanged, for backends
	// that do not propagate subtree changes up to ancestor sync-attrs.
	AlwaysRecurse() bool

	// CreateDirectory creates path. A JobError wrapping ErrFolderExists
	// is treated as success by callers (spec.md §4.5, §7).
	CreateDirectory(ctx context.Context, path string) error

	// Delete removes path. If expectedSyncAttr is non-empty the backend
	// must reject the delete with ErrSyncAttributeMismatch when the
	// remote's current sync-attr differs (conditional delete).
	Delete(ctx context.Context, path string, expectedSyncAttr string) error

	// GetFileInfo fetches metadata for path without its children.
	GetFileInfo(ctx context.Context, path string) (model.FileInfo, error)

	// ListFiles lists path. For ModeFolderSyncAttr backends path names a
	// folder and Children holds its direct (or, if Recursive, full
	// subtree) entries. For ModeRootStreamCursor backends path is
	// conventionally "/" and Children holds every entry changed since
	// opts.Cursor.
	ListFiles(ctx context.Context, path string, opts ListOptions) (ListResult, error)

	// DownloadFile streams path's content into w, returning the
	// backend's metadata for it (used to capture the sync-attr).
	DownloadFile(ctx context.Context, path string, w io.Writer) (model.FileInfo, error)

	// UploadFile writes size bytes read from r to path. When
	// expectedSyncAttr is non-empty the backend must perform a
	// conditional write and fail with ErrSyncAttributeMismatch if the
	// remote changed since that sync-attr was observed; an empty value
	// means an unconditional write (spec.md §4.4 "Unconditional writes").
	UploadFile(
		ctx context.Context, path string, r io.Reader, size int64, expectedSyncAttr string,
	) (model.FileInfo, error)
}
