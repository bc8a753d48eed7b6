package executor

import "errors"

// Sync-level sentinel errors (spec.md §7 "Sync-level" taxonomy). The
// first one observed during a run latches as Run's returned error;
// later ones are logged only.
var (
	ErrFailedCreatingLocalFolder  = errors.New("executor: failed creating local folder")
	ErrFailedDeletingLocal        = errors.New("executor: failed deleting local resource")
	ErrFailedCreatingRemoteFolder = errors.New("executor: failed creating remote folder")
	ErrFailedDeletingRemote       = errors.New("executor: failed deleting remote resource")
	ErrUploadFailed               = errors.New("executor: upload failed")
	ErrDownloadFailed             = errors.New("executor: download failed")
	ErrOpeningLocalFileFailed     = errors.New("executor: opening local file failed")
	ErrWritingLocalFileFailed     = errors.New("executor: writing local file failed")
	ErrSyncStateDatabaseFailed    = errors.New("executor: sync-state database operation failed")

	// ErrStuck is returned when a full scheduling walk starts no action
	// while nothing is in flight (spec.md §4.5, §8 scenario S6).
	ErrStuck = errors.New("executor: stuck")

	// ErrStopped is returned when Stop was called before the run
	// finished on its own.
	ErrStopped = errors.New("executor: stopped")
)
