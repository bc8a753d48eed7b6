package dropboxapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path"

	"golang.org/x/oauth2"

	"github.com/foldersync/foldersync/internal/model"
	"github.com/foldersync/foldersync/internal/remotejob"
)

// Factory implements remotejob.JobFactory against a Dropbox-style API. It
// reports ModeRootStreamCursor (spec.md §6): a single /list_folder call
// over the whole account, continued by cursor, replaces per-folder
// sync-attribute comparison entirely.
type Factory struct {
	client *httpClient
}

// New builds a Factory. token supplies bearer tokens via
// golang.org/x/oauth2's refreshing TokenSource; the interactive OAuth
// consent flow that produces the initial token is out of scope here
// (spec.md §1) — internal/credstore persists whatever token the caller
// already obtained.
func New(hc *http.Client, token oauth2.TokenSource, logger *slog.Logger) *Factory {
	return &Factory{client: newHTTPClient(hc, token, logger)}
}

func (f *Factory) ChangeMode() remotejob.ChangeMode { return remotejob.ModeRootStreamCursor }

// AlwaysRecurse has no meaning for a root-stream-cursor backend; the
// ChangeTree builder never calls it in this mode.
func (f *Factory) AlwaysRecurse() bool { return false }

func fixPath(p string) string {
	if p == "/" {
		// The Dropbox API represents the account root as "", not "/".
		return ""
	}

	return path.Clean("/" + p)
}

func (f *Factory) CreateDirectory(ctx context.Context, remotePath string) error {
	data := map[string]any{"path": fixPath(remotePath), "autorename": false}

	status, body, err := f.client.rpc(ctx, "/files/create_folder_v2", data)
	if err != nil {
		return err
	}

	if status == http.StatusOK {
		return nil
	}

	return remotejob.Wrap(classifyCreateDirectoryError(body), "create_folder_v2 %s: %s", remotePath, body)
}

func (f *Factory) Delete(ctx context.Context, remotePath string, expectedSyncAttr string) error {
	data := map[string]any{"path": fixPath(remotePath)}
	if expectedSyncAttr != "" {
		data["parent_rev"] = expectedSyncAttr
	}

	status, body, err := f.client.rpc(ctx, "/files/delete_v2", data)
	if err != nil {
		return err
	}

	if status == http.StatusOK {
		return nil
	}

	kind, notAnError := classifyDeleteError(body)
	if notAnError {
		return nil
	}

	return remotejob.Wrap(kind, "delete_v2 %s: %s", remotePath, body)
}

func (f *Factory) GetFileInfo(ctx context.Context, remotePath string) (model.FileInfo, error) {
	data := map[string]any{"path": fixPath(remotePath)}

	status, body, err := f.client.rpc(ctx, "/files/get_metadata", data)
	if err != nil {
		return model.FileInfo{}, err
	}

	if status != http.StatusOK {
		return model.FileInfo{}, remotejob.Wrap(classifyGetFileInfoError(body), "get_metadata %s: %s", remotePath, body)
	}

	info, err := fileInfoFromJSON(body, model.Base(remotePath))
	if err != nil {
		return model.FileInfo{}, remotejob.Wrap(remotejob.ErrInvalidResponse, "get_metadata %s: %v", remotePath, err)
	}

	if info.Kind == model.KindDeleted {
		return model.FileInfo{}, remotejob.Wrap(remotejob.ErrResourceDeleted, "%s", remotePath)
	}

	return info, nil
}

// listFolderResponse is the subset of /files/list_folder's and
// /files/list_folder/continue's JSON response this backend reads.
type listFolderResponse struct {
	Entries []json.RawMessage `json:"entries"`
	Cursor  string            `json:"cursor"`
	HasMore bool              `json:"has_more"`
}

func (f *Factory) ListFiles(ctx context.Context, remotePath string, opts remotejob.ListOptions) (remotejob.ListResult, error) {
	endpoint := "/files/list_folder"

	var data map[string]any
	if opts.Cursor != "" {
		endpoint = "/files/list_folder/continue"
		data = map[string]any{"cursor": opts.Cursor}
	} else {
		data = map[string]any{"path": fixPath(remotePath), "recursive": true}
	}

	result := remotejob.ListResult{Folder: model.FileInfo{Kind: model.KindDirectory, Name: "."}}

	for {
		status, body, err := f.client.rpc(ctx, endpoint, data)
		if err != nil {
			return remotejob.ListResult{}, err
		}

		if status != http.StatusOK {
			return remotejob.ListResult{}, remotejob.Wrap(classifyListError(body), "%s %s: %s", endpoint, remotePath, body)
		}

		var resp listFolderResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return remotejob.ListResult{}, remotejob.Wrap(remotejob.ErrInvalidResponse, "%s: %v", endpoint, err)
		}

		for _, raw := range resp.Entries {
			var name string
			if n, err := entryName(raw); err == nil {
				name = n
			}

			info, err := fileInfoFromJSON(raw, name)
			if err != nil {
				return remotejob.ListResult{}, remotejob.Wrap(remotejob.ErrInvalidResponse, "%s: %v", endpoint, err)
			}

			result.Children = append(result.Children, info)
		}

		if !resp.HasMore {
			result.NextCursor = resp.Cursor

			return result, nil
		}

		endpoint = "/files/list_folder/continue"
		data = map[string]any{"cursor": resp.Cursor}
	}
}

func entryName(raw json.RawMessage) (string, error) {
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", err
	}

	return obj.Name, nil
}

func (f *Factory) DownloadFile(ctx context.Context, remotePath string, w io.Writer) (model.FileInfo, error) {
	arg := map[string]any{"path": fixPath(remotePath)}

	status, header, body, err := f.client.content(ctx, "/files/download", arg, nil, w)
	if err != nil {
		return model.FileInfo{}, err
	}

	if status != http.StatusOK {
		return model.FileInfo{}, remotejob.Wrap(remotejob.ErrNetworkRequestFailed, "download %s: %s", remotePath, body)
	}

	result := header.Get("Dropbox-API-Result")
	if result == "" {
		return model.FileInfo{}, remotejob.Wrap(remotejob.ErrInvalidResponse, "download %s: missing Dropbox-API-Result header", remotePath)
	}

	info, err := fileInfoFromJSON([]byte(result), model.Base(remotePath))
	if err != nil {
		return model.FileInfo{}, remotejob.Wrap(remotejob.ErrInvalidResponse, "download %s: %v", remotePath, err)
	}

	return info, nil
}

func (f *Factory) UploadFile(ctx context.Context, remotePath string, r io.Reader, _ int64, expectedSyncAttr string) (model.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return model.FileInfo{}, remotejob.Wrap(remotejob.ErrInvalidParameter, "reading upload source: %v", err)
	}

	mode := any("overwrite")
	if expectedSyncAttr != "" {
		mode = map[string]any{".tag": "update", "update": expectedSyncAttr}
	}

	arg := map[string]any{
		"path":       fixPath(remotePath),
		"mode":       mode,
		"autorename": false,
		"mute":       true,
	}

	status, _, body, err := f.client.content(ctx, "/files/upload", arg, data, nil)
	if err != nil {
		return model.FileInfo{}, err
	}

	if status != http.StatusOK {
		return model.FileInfo{}, remotejob.Wrap(classifyUploadError(body), "upload %s: %s", remotePath, body)
	}

	info, err := fileInfoFromJSON(body, model.Base(remotePath))
	if err != nil {
		return model.FileInfo{}, remotejob.Wrap(remotejob.ErrInvalidResponse, "upload %s: %v", remotePath, err)
	}

	return info, nil
}

var _ remotejob.JobFactory = (*Factory)(nil)
