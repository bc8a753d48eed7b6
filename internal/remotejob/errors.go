package remotejob

import (
	"errors"
	"fmt"
)

// Job-level sentinel errors (spec.md §7 "Job-level" taxonomy). Backends
// map their own failure modes onto these via errors.Is.
var (
	ErrNoError                    = errors.New("remotejob: no error")
	ErrStopped                    = errors.New("remotejob: stopped")
	ErrMissingParameter           = errors.New("remotejob: missing parameter")
	ErrInvalidParameter           = errors.New("remotejob: invalid parameter")
	ErrInvalidResponse            = errors.New("remotejob: invalid response")
	ErrNetworkRequestFailed       = errors.New("remotejob: network request failed")
	ErrForbidden                  = errors.New("remotejob: forbidden")
	ErrResourceNotFound           = errors.New("remotejob: resource not found")
	ErrServerContentConflict      = errors.New("remotejob: server content conflict")
	ErrSyncAttributeMismatch      = errors.New("remotejob: sync attribute mismatch")
	ErrFolderExists               = errors.New("remotejob: folder exists")
	ErrServerClosedConnection     = errors.New("remotejob: server closed connection")
	ErrResourceDeleted            = errors.New("remotejob: resource deleted")
	ErrRemoteResourceIsNotAFolder = errors.New("remotejob: remote resource is not a folder")
)

// JobError wraps one of the sentinel errors above with a human-readable
// message from the backend, preserving errors.Is/As compatibility.
type JobError struct {
	Kind    error // one of the Err* sentinels
	Message string
}

func (e *JobError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *JobError) Unwrap() error {
	return e.Kind
}

// Wrap builds a *JobError classifying kind with an explanatory message.
func Wrap(kind error, format string, args ...any) error {
	return &JobError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
