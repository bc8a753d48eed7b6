package webdav

import (
	"net/http"

	"github.com/foldersync/foldersync/internal/remotejob"
)

// isRetryableStatus reports whether a response status code should be
// retried.
func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// classifyStatus maps a WebDAV server's HTTP status to a remotejob
// sentinel (405 on MKCOL means "exists", 412 means a conditional write's
// If-Match failed, 207 needs its own multistatus walk rather than a
// single classification).
func classifyStatus(code int) error {
	switch {
	case code >= http.StatusOK && code < http.StatusMultipleChoices:
		return nil
	case code == http.StatusNotFound:
		return remotejob.ErrResourceNotFound
	case code == http.StatusForbidden:
		return remotejob.ErrForbidden
	case code == http.StatusPreconditionFailed:
		return remotejob.ErrSyncAttributeMismatch
	case code == http.StatusConflict:
		return remotejob.ErrServerContentConflict
	case code == http.StatusGone:
		return remotejob.ErrResourceDeleted
	case code == http.StatusLocked:
		return remotejob.ErrServerContentConflict
	case code == http.StatusBadRequest:
		return remotejob.ErrInvalidParameter
	default:
		return remotejob.ErrNetworkRequestFailed
	}
}
