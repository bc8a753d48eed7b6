package dropboxapi

import (
	"encoding/json"

	"github.com/foldersync/foldersync/internal/remotejob"
)

// apiError is the envelope Dropbox returns on non-2xx responses:
//
//	{"error_summary": "path/not_found/...", "error": {".tag": "path", "path": {".tag": "not_found"}}}
type apiError struct {
	Summary string          `json:"error_summary"`
	Error   json.RawMessage `json:"error"`
}

// tagAt walks a chain of ".tag"-bearing objects and returns the ".tag"
// value at the given key path, or "" if any step is missing. Mirrors
// AbstractDropboxJobPrivate::tryHandleKnownError's hierarchical lookup.
func tagAt(raw json.RawMessage, path ...string) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}

	cur := obj

	for i, key := range path {
		val, ok := cur[key]
		if !ok {
			return ""
		}

		if i == len(path)-1 {
			var s string
			if err := json.Unmarshal(val, &s); err == nil {
				return s
			}

			return ""
		}

		if err := json.Unmarshal(val, &cur); err != nil {
			return ""
		}
	}

	return ""
}

// classifyCreateDirectoryError maps create_folder_v2's known conflict
// shape to ErrFolderExists.
func classifyCreateDirectoryError(body []byte) error {
	var e apiError
	if json.Unmarshal(body, &e) == nil {
		if tagAt(e.Error, "path", "conflict", ".tag") == "folder" {
			return remotejob.ErrFolderExists
		}
	}

	return remotejob.ErrNetworkRequestFailed
}

// classifyDeleteError reports whether the resource was already gone
// (deleteNotAnError) and otherwise maps a conflicting write to
// ErrSyncAttributeMismatch.
func classifyDeleteError(body []byte) (err error, deleteNotAnError bool) {
	var e apiError
	if json.Unmarshal(body, &e) == nil {
		if tagAt(e.Error, "path", ".tag") == "not_found" {
			return nil, true
		}

		if tagAt(e.Error, "path_write", "conflict", ".tag") == "file" {
			return remotejob.ErrSyncAttributeMismatch, false
		}
	}

	return remotejob.ErrNetworkRequestFailed, false
}

// classifyGetFileInfoError maps get_metadata's known not-found shape to
// ErrResourceNotFound.
func classifyGetFileInfoError(body []byte) error {
	var e apiError
	if json.Unmarshal(body, &e) == nil {
		if tagAt(e.Error, "path", ".tag") == "not_found" {
			return remotejob.ErrResourceNotFound
		}
	}

	return remotejob.ErrNetworkRequestFailed
}

// classifyUploadError maps upload's known path/conflict/file shape to
// ErrSyncAttributeMismatch.
func classifyUploadError(body []byte) error {
	var e apiError
	if json.Unmarshal(body, &e) == nil {
		if tagAt(e.Error, "reason", "conflict", ".tag") == "file" {
			return remotejob.ErrSyncAttributeMismatch
		}
	}

	return remotejob.ErrNetworkRequestFailed
}

// classifyListError maps list_folder's known not_folder shape to
// ErrRemoteResourceIsNotAFolder.
func classifyListError(body []byte) error {
	var e apiError
	if json.Unmarshal(body, &e) == nil {
		if tagAt(e.Error, "path", ".tag") == "not_folder" {
			return remotejob.ErrRemoteResourceIsNotAFolder
		}
	}

	return remotejob.ErrNetworkRequestFailed
}
