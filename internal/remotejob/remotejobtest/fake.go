// Package remotejobtest provides an in-memory remotejob.JobFactory fake
// used across the changetree, planner, executor, and orchestrator test
// suites, in place of a generated mock (matching the teacher's pattern of
// hand-rolled fakes satisfying narrow interfaces).
package remotejobtest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/foldersync/foldersync/internal/model"
	"github.com/foldersync/foldersync/internal/remotejob"
)

type fakeFile struct {
	isDir   bool
	content []byte
	attr    string
}

// Factory is an in-memory backend. The zero value is not usable; use New.
type Factory struct {
	mu    sync.Mutex
	mode  remotejob.ChangeMode
	files map[string]*fakeFile // canonical path -> file

	alwaysRecurse bool

	// FailDelete, when set, makes Delete(path) always return this error
	// (used to reproduce spec.md §8 scenario S6, the Stuck executor).
	FailDelete map[string]error
}

// New returns an empty fake rooted at "/", which always exists as a
// directory.
func New(mode remotejob.ChangeMode) *Factory {
	return &Factory{
		mode:       mode,
		files:      map[string]*fakeFile{"/": {isDir: true, attr: "root-0"}},
		FailDelete: map[string]error{},
	}
}

func (f *Factory) ChangeMode() remotejob.ChangeMode { return f.mode }
func (f *Factory) AlwaysRecurse() bool              { return f.alwaysRecurse }

// SetAlwaysRecurse configures the AlwaysRecurse() return value.
func (f *Factory) SetAlwaysRecurse(v bool) { f.alwaysRecurse = v }

// PutDir seeds a directory at path with the given sync-attr.
func (f *Factory) PutDir(path, attr string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[model.Canon(path)] = &fakeFile{isDir: true, attr: attr}
}

// PutFile seeds a file at path with the given content; the sync-attr is
// derived deterministically from the content unless attr is non-empty.
func (f *Factory) PutFile(path string, content []byte, attr string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if attr == "" {
		attr = contentAttr(content)
	}

	f.files[model.Canon(path)] = &fakeFile{content: content, attr: attr}
}

func contentAttr(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])[:12]
}

func (f *Factory) CreateDirectory(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := model.Canon(path)
	if existing, ok := f.files[p]; ok {
		if existing.isDir {
			return remotejob.Wrap(remotejob.ErrFolderExists, "%s", p)
		}

		return remotejob.Wrap(remotejob.ErrServerContentConflict, "%s is a file", p)
	}

	f.files[p] = &fakeFile{isDir: true, attr: fmt.Sprintf("dir-%s", p)}

	return nil
}

func (f *Factory) Delete(_ context.Context, path string, expectedSyncAttr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := model.Canon(path)

	if err, ok := f.FailDelete[p]; ok {
		return err
	}

	existing, ok := f.files[p]
	if !ok {
		return remotejob.Wrap(remotejob.ErrResourceNotFound, "%s", p)
	}

	if existing.isDir {
		for child := range f.files {
			if model.IsPrefix(p, child) {
				return remotejob.Wrap(remotejob.ErrServerContentConflict, "%s is not empty", p)
			}
		}
	}

	if expectedSyncAttr != "" && existing.attr != expectedSyncAttr {
		return remotejob.Wrap(remotejob.ErrSyncAttributeMismatch, "%s", p)
	}

	delete(f.files, p)

	return nil
}

func (f *Factory) GetFileInfo(_ context.Context, path string) (model.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := model.Canon(path)

	existing, ok := f.files[p]
	if !ok {
		return model.FileInfo{}, remotejob.Wrap(remotejob.ErrResourceNotFound, "%s", p)
	}

	return toFileInfo(p, existing), nil
}

func toFileInfo(p string, ff *fakeFile) model.FileInfo {
	kind := model.KindFile
	if ff.isDir {
		kind = model.KindDirectory
	}

	return model.FileInfo{Kind: kind, Name: model.Base(p), SyncAttr: ff.attr}
}

func (f *Factory) ListFiles(
	_ context.Context, path string, opts remotejob.ListOptions,
) (remotejob.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := model.Canon(path)

	folder, ok := f.files[p]
	if !ok {
		return remotejob.ListResult{}, remotejob.Wrap(remotejob.ErrResourceNotFound, "%s", p)
	}

	if !folder.isDir {
		return remotejob.ListResult{}, remotejob.Wrap(remotejob.ErrRemoteResourceIsNotAFolder, "%s", p)
	}

	var children []string

	for candidate := range f.files {
		if candidate == p {
			continue
		}

		if opts.Recursive {
			if model.IsPrefix(p, candidate) {
				children = append(children, candidate)
			}

			continue
		}

		if model.Dir(candidate) == p {
			children = append(children, candidate)
		}
	}

	sort.Strings(children)

	result := remotejob.ListResult{Folder: toFileInfo(p, folder)}

	for _, c := range children {
		fi := toFileInfo(c, f.files[c])
		if opts.Recursive {
			// A recursive (root-stream-cursor style) listing spans
			// multiple directories, so the basename alone is ambiguous;
			// report the full canonical path instead.
			fi.Name = c
		}

		result.Children = append(result.Children, fi)
	}

	return result, nil
}

func (f *Factory) DownloadFile(_ context.Context, path string, w io.Writer) (model.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := model.Canon(path)

	existing, ok := f.files[p]
	if !ok || existing.isDir {
		return model.FileInfo{}, remotejob.Wrap(remotejob.ErrResourceNotFound, "%s", p)
	}

	if _, err := w.Write(existing.content); err != nil {
		return model.FileInfo{}, remotejob.Wrap(remotejob.ErrNetworkRequestFailed, "%s: %v", p, err)
	}

	return toFileInfo(p, existing), nil
}

func (f *Factory) UploadFile(
	_ context.Context, path string, r io.Reader, _ int64, expectedSyncAttr string,
) (model.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := model.Canon(path)

	if existing, ok := f.files[p]; ok && expectedSyncAttr != "" && existing.attr != expectedSyncAttr {
		return model.FileInfo{}, remotejob.Wrap(remotejob.ErrSyncAttributeMismatch, "%s", p)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return model.FileInfo{}, remotejob.Wrap(remotejob.ErrNetworkRequestFailed, "%s: %v", p, err)
	}

	ff := &fakeFile{content: data, attr: contentAttr(data)}
	f.files[p] = ff

	return toFileInfo(p, ff), nil
}

var _ remotejob.JobFactory = (*Factory)(nil)
