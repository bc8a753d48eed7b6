package orchestrator

import "errors"

// Sentinel errors for the parts of spec.md §7's sync-level taxonomy that
// internal/executor does not already define: input validation, opening
// and closing the sync-state database, listing the remote tree, and
// failures during the create-remote-root-on-first-sync bootstrap.
var (
	ErrMissingParameter               = errors.New("orchestrator: missing parameter")
	ErrInvalidParameter               = errors.New("orchestrator: invalid parameter")
	ErrFailedOpeningSyncStateDatabase = errors.New("orchestrator: failed opening sync-state database")
	ErrFailedClosingSyncStateDatabase = errors.New("orchestrator: failed closing sync-state database")
	ErrFailedListingRemoteFolder      = errors.New("orchestrator: failed listing remote folder")
	ErrFailedCreatingRemoteRoot       = errors.New("orchestrator: failed creating remote root")

	// ErrAlreadyRunning is returned by Run when the Synchronizer is in
	// the Running state.
	ErrAlreadyRunning = errors.New("orchestrator: already running")
)
