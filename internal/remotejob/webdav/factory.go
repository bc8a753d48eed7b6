package webdav

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/foldersync/foldersync/internal/model"
	"github.com/foldersync/foldersync/internal/remotejob"
)

// Factory implements remotejob.JobFactory against a single WebDAV server.
// It always reports ModeFolderSyncAttr (spec.md §6): WebDAV has no
// root-level change-stream primitive, only per-resource ETags.
type Factory struct {
	client      *httpClient
	workarounds Workarounds
}

// New builds a Factory talking to the WebDAV server at baseURL (e.g.
// "https://dav.example.com/remote.php/dav/files/me"). token may be nil if
// the http.Client's transport already handles authentication.
func New(baseURL string, hc *http.Client, token TokenSource, workarounds Workarounds, logger *slog.Logger) (*Factory, error) {
	client, err := newHTTPClient(baseURL, hc, token, logger)
	if err != nil {
		return nil, err
	}

	return &Factory{client: client, workarounds: workarounds}, nil
}

func (f *Factory) ChangeMode() remotejob.ChangeMode { return remotejob.ModeFolderSyncAttr }

// AlwaysRecurse forces the folder-sync-attribute builder to descend even
// when a folder's ETag is unchanged, for servers that don't propagate
// subtree changes up to ancestor ETags.
func (f *Factory) AlwaysRecurse() bool { return f.workarounds.NoRecursiveFolderETags }

func (f *Factory) CreateDirectory(ctx context.Context, path string) error {
	resp, body, err := f.client.do(ctx, request{method: "MKCOL", path: path})
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusMethodNotAllowed {
		return remotejob.Wrap(remotejob.ErrFolderExists, "%s", path)
	}

	if resp.StatusCode != http.StatusCreated {
		return remotejob.Wrap(classifyStatus(resp.StatusCode), "MKCOL %s: %s", path, body)
	}

	return nil
}

func (f *Factory) Delete(ctx context.Context, path string, expectedSyncAttr string) error {
	headers := http.Header{}
	if expectedSyncAttr != "" {
		headers.Set("If-Match", expectedSyncAttr)
	}

	resp, body, err := f.client.do(ctx, request{method: http.MethodDelete, path: path, headers: headers})
	if err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	return remotejob.Wrap(classifyStatus(resp.StatusCode), "DELETE %s: %s", path, body)
}

func (f *Factory) GetFileInfo(ctx context.Context, path string) (model.FileInfo, error) {
	resp, body, err := f.client.propfind(ctx, path, "0")
	if err != nil {
		return model.FileInfo{}, err
	}

	const webdavMultiStatus = 207
	if resp.StatusCode != webdavMultiStatus {
		return model.FileInfo{}, remotejob.Wrap(classifyStatus(resp.StatusCode), "PROPFIND %s: %s", path, body)
	}

	entries, err := parseMultistatus(f.client.resolvedPath(path), body)
	if err != nil {
		return model.FileInfo{}, remotejob.Wrap(remotejob.ErrInvalidResponse, "%v", err)
	}

	for _, e := range entries {
		if e.name == "." {
			return toFileInfo(model.Base(path), e), nil
		}
	}

	return model.FileInfo{}, remotejob.Wrap(remotejob.ErrResourceNotFound, "%s", path)
}

func (f *Factory) ListFiles(
	ctx context.Context, path string, opts remotejob.ListOptions,
) (remotejob.ListResult, error) {
	depth := "1"
	if opts.Recursive {
		depth = "infinity"
	}

	resp, body, err := f.client.propfind(ctx, path, depth)
	if err != nil {
		return remotejob.ListResult{}, err
	}

	if opts.Recursive && resp.StatusCode == http.StatusForbidden {
		// Some servers reject Depth: infinity PROPFIND outright (RFC 4918
		// §9.1 allows this). No Depth: 1 fallback is attempted; the caller
		// gets this error.
		return remotejob.ListResult{}, remotejob.Wrap(remotejob.ErrInvalidParameter, "server rejects Depth: infinity PROPFIND for %s", path)
	}

	const webdavMultiStatus = 207
	if resp.StatusCode != webdavMultiStatus {
		return remotejob.ListResult{}, remotejob.Wrap(classifyStatus(resp.StatusCode), "PROPFIND %s: %s", path, body)
	}

	entries, err := parseMultistatus(f.client.resolvedPath(path), body)
	if err != nil {
		return remotejob.ListResult{}, remotejob.Wrap(remotejob.ErrInvalidResponse, "%v", err)
	}

	result := remotejob.ListResult{}

	for _, e := range entries {
		if e.name == "." {
			if !e.isDir {
				return remotejob.ListResult{}, remotejob.Wrap(remotejob.ErrRemoteResourceIsNotAFolder, "%s", path)
			}

			result.Folder = toFileInfo(model.Base(path), e)

			continue
		}

		result.Children = append(result.Children, toFileInfo(e.name, e))
	}

	return result, nil
}

func toFileInfo(name string, e entry) model.FileInfo {
	kind := model.KindFile
	if e.isDir {
		kind = model.KindDirectory
	}

	return model.FileInfo{Kind: kind, Name: name, SyncAttr: e.syncAttr}
}

func (f *Factory) DownloadFile(ctx context.Context, path string, w io.Writer) (model.FileInfo, error) {
	resp, body, err := f.client.do(ctx, request{method: http.MethodGet, path: path})
	if err != nil {
		return model.FileInfo{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return model.FileInfo{}, remotejob.Wrap(classifyStatus(resp.StatusCode), "GET %s: status %d", path, resp.StatusCode)
	}

	if _, err := w.Write(body); err != nil {
		return model.FileInfo{}, remotejob.Wrap(remotejob.ErrNetworkRequestFailed, "%s: %v", path, err)
	}

	etag := stripWeakPrefix(resp.Header.Get("ETag"))
	if f.workarounds.DerivePROPFINDETagsFromGETETagsForApache {
		etag = deriveApachePropfindETag(etag)
	}

	if f.workarounds.InconsistentETagsUsingPROPFINDAndGET {
		// The GET ETag is not comparable with listings; use PROPFIND's.
		info, err := f.GetFileInfo(ctx, path)
		if err != nil {
			return model.FileInfo{}, err
		}

		etag = info.SyncAttr
	}

	return model.FileInfo{Kind: model.KindFile, Name: model.Base(path), SyncAttr: etag}, nil
}

// apacheETagPattern matches Apache mod_dav GET ETags of the form
// "inode-size-mtime"; the PROPFIND-form ETag drops the leading inode
// component, leaving "size-mtime" (WebDAVDownloadFileJobPrivate's
// workaround for https://gitlab.com/rpdev/opentodolist/-/issues/471).
var apacheETagPattern = regexp.MustCompile(`^"[0-9a-f]+-([0-9a-f]+-[0-9a-f]+)"$`)

func deriveApachePropfindETag(getETag string) string {
	if m := apacheETagPattern.FindStringSubmatch(getETag); m != nil {
		return fmt.Sprintf("%q", m[1])
	}

	return getETag
}

func (f *Factory) UploadFile(
	ctx context.Context, path string, r io.Reader, size int64, expectedSyncAttr string,
) (model.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return model.FileInfo{}, remotejob.Wrap(remotejob.ErrInvalidParameter, "reading upload source: %v", err)
	}

	headers := http.Header{"Content-Type": []string{"application/octet-stream"}}
	if expectedSyncAttr != "" {
		headers.Set("If-Match", expectedSyncAttr)
	}

	resp, body, err := f.client.do(ctx, request{method: http.MethodPut, path: path, headers: headers, body: data})
	if err != nil {
		return model.FileInfo{}, err
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return model.FileInfo{Kind: model.KindFile, Name: model.Base(path), SyncAttr: resp.Header.Get("ETag")}, nil
	default:
		return model.FileInfo{}, remotejob.Wrap(classifyStatus(resp.StatusCode), "PUT %s: %s", path, body)
	}
}

var _ remotejob.JobFactory = (*Factory)(nil)
