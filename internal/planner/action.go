// Package planner merges a local and a remote ChangeTree into the
// ordered sequence of SyncActions the executor will run, under a
// pluggable ConflictStrategy (spec.md §4.4).
package planner

import "github.com/foldersync/foldersync/internal/model"

// ActionKind identifies which of the six executable operations a
// SyncAction represents.
type ActionKind int

// Action kinds (spec.md §3's SyncAction variants).
const (
	ActionUploadFile ActionKind = iota
	ActionDownloadFile
	ActionDeleteLocal
	ActionDeleteRemote
	ActionMkDirLocal
	ActionMkDirRemote
)

func (k ActionKind) String() string {
	switch k {
	case ActionUploadFile:
		return "upload-file"
	case ActionDownloadFile:
		return "download-file"
	case ActionDeleteLocal:
		return "delete-local"
	case ActionDeleteRemote:
		return "delete-remote"
	case ActionMkDirLocal:
		return "mkdir-local"
	case ActionMkDirRemote:
		return "mkdir-remote"
	default:
		return "unknown"
	}
}

// SyncAction is one executable unit of the plan (spec.md §3). Field
// meaning depends on Kind:
//
//   - UploadFile: LocalMtime is the local mtime captured at plan time;
//     ExpectedSyncAttr is empty for an unconditional write (local-wins
//     propagating its own change) or carries PrevEntry.SyncAttr for a
//     conditional one (spec.md §4.4 "Unconditional writes").
//   - DownloadFile: ExpectedSyncAttr is the remote sync-attribute
//     observed by the ChangeTree builder.
//   - MkDirLocal: RemoteSyncAttr is recorded once local creation
//     succeeds; the DB write is deferred to end-of-run (spec.md §4.5).
//   - DeleteLocal/DeleteRemote: PrevEntry carries the previously stored
//     values for the deleted path.
type SyncAction struct {
	Kind             ActionKind
	Path             string
	PathKind         model.Kind // the path's kind (file/directory)
	PrevEntry        model.SyncStateEntry
	LocalMtime       int64
	ExpectedSyncAttr string
	RemoteSyncAttr   string
	Retries          int
}

// Conflict records one impossible-change-combination tie-break decide
// hit and could not resolve into an action: both sides claim a change
// at the same path in a way the strategy has no ordering for (spec.md
// §4.4's "impossible combinations"). Surfaced so a run can report what
// it silently skipped instead of only logging a warning.
type Conflict struct {
	Path         string
	LocalChange  string
	RemoteChange string
	Strategy     string
	Detail       string
}
