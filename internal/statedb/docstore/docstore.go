// Package docstore implements statedb.Store as a single nested JSON
// document, matching the persisted layout of spec.md §6:
//
//	{"version": "1.0", "entry": {...}?, "children": {name: node}?}
//
// recursively. The document is read entirely at Open and written
// atomically (write-to-temp + rename) at Close.
package docstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/foldersync/foldersync/internal/model"
	"github.com/foldersync/foldersync/internal/statedb"
)

// formatVersion is the only version this implementation understands.
// Opening a document whose "version" field differs is refused.
const formatVersion = "1.0"

// node is one entry in the nested document tree.
type node struct {
	Entry    *nodeEntry       `json:"entry,omitempty"`
	Children map[string]*node `json:"children,omitempty"`
}

type nodeEntry struct {
	ModificationTime int64  `json:"modificationTime"`
	SyncProperty     string `json:"syncProperty"`
	Valid            bool   `json:"valid"`
}

type document struct {
	Version string `json:"version"`
	*node
}

// Store is a statedb.Store backed by a single JSON file.
type Store struct {
	path string
	doc  *document
}

// New returns a Store that will read/write path on Open/Close.
func New(path string) *Store {
	return &Store{path: path}
}

var _ statedb.Store = (*Store)(nil)

// Open reads the JSON document from disk, creating an empty one if the
// file does not exist. Refuses to open a document with an unrecognized
// version.
func (s *Store) Open(_ context.Context) error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.doc = &document{Version: formatVersion, node: &node{}}
		return nil
	}

	if err != nil {
		return fmt.Errorf("docstore: read %s: %w", s.path, err)
	}

	var doc document
	doc.node = &node{}

	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("docstore: parse %s: %w", s.path, err)
	}

	if doc.Version != formatVersion {
		return fmt.Errorf("docstore: %s has unsupported version %q (want %q)", s.path, doc.Version, formatVersion)
	}

	if doc.node.Children == nil {
		doc.node.Children = map[string]*node{}
	}

	s.doc = &doc

	return nil
}

// Close writes the document atomically (write-to-temp + rename) and
// releases it from memory.
func (s *Store) Close(_ context.Context) error {
	if s.doc == nil {
		return nil
	}

	data, err := json.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("docstore: marshal %s: %w", s.path, err)
	}

	dir := filepath.Dir(s.path)

	tmp, err := os.CreateTemp(dir, ".docstore-*.tmp")
	if err != nil {
		return fmt.Errorf("docstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpName) //nolint:errcheck

		return fmt.Errorf("docstore: write temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("docstore: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return fmt.Errorf("docstore: rename into place: %w", err)
	}

	s.doc = nil

	return nil
}

// segments splits a canonical path into its non-empty components.
func segments(path string) []string {
	p := model.Canon(path)
	if p == "/" {
		return nil
	}

	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}

// walk returns the node at path, creating intermediate nodes along the
// way when create is true. Returns nil, false when the node doesn't
// exist and create is false.
func (s *Store) walk(path string, create bool) (*node, bool) {
	cur := s.doc.node

	for _, seg := range segments(path) {
		if cur.Children == nil {
			if !create {
				return nil, false
			}

			cur.Children = map[string]*node{}
		}

		child, ok := cur.Children[seg]
		if !ok {
			if !create {
				return nil, false
			}

			child = &node{}
			cur.Children[seg] = child
		}

		cur = child
	}

	return cur, true
}

// Put inserts or overwrites the entry at entry.Path.
func (s *Store) Put(_ context.Context, entry model.SyncStateEntry) error {
	n, _ := s.walk(entry.Path, true)
	n.Entry = &nodeEntry{
		ModificationTime: entry.Mtime,
		SyncProperty:     entry.SyncAttr,
		Valid:            entry.Valid,
	}

	return nil
}

// Get performs an exact-match lookup.
func (s *Store) Get(_ context.Context, path string) (model.SyncStateEntry, bool, error) {
	n, ok := s.walk(path, false)
	if !ok || n.Entry == nil {
		return model.SyncStateEntry{}, false, nil
	}

	return model.SyncStateEntry{
		Path:     model.Canon(path),
		Mtime:    n.Entry.ModificationTime,
		SyncAttr: n.Entry.SyncProperty,
		Valid:    n.Entry.Valid,
	}, true, nil
}

// Children returns the direct children of path, excluding path itself.
func (s *Store) Children(_ context.Context, path string) ([]model.SyncStateEntry, error) {
	n, ok := s.walk(path, false)
	if !ok {
		return nil, nil
	}

	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}

	var out []model.SyncStateEntry

	for _, name := range names {
		child := n.Children[name]
		if child.Entry == nil {
			continue
		}

		out = append(out, model.SyncStateEntry{
			Path:     model.Join(path, name),
			Mtime:    child.Entry.ModificationTime,
			SyncAttr: child.Entry.SyncProperty,
			Valid:    child.Entry.Valid,
		})
	}

	return out, nil
}

// DeleteSubtree removes the entry at path and every descendant by
// deleting the node from its parent's children map (for the root, by
// clearing the root's own entry and its children map).
func (s *Store) DeleteSubtree(_ context.Context, path string) error {
	segs := segments(path)
	if len(segs) == 0 {
		s.doc.node.Entry = nil
		s.doc.node.Children = map[string]*node{}

		return nil
	}

	parent := s.doc.node
	for _, seg := range segs[:len(segs)-1] {
		if parent.Children == nil {
			return nil
		}

		next, ok := parent.Children[seg]
		if !ok {
			return nil
		}

		parent = next
	}

	if parent.Children != nil {
		delete(parent.Children, segs[len(segs)-1])
	}

	return nil
}

// DeleteOne removes only the entry at path; descendants survive.
func (s *Store) DeleteOne(_ context.Context, path string) error {
	n, ok := s.walk(path, false)
	if !ok {
		return nil
	}

	n.Entry = nil

	return nil
}

// Iterate performs a breadth-first walk over the subtree rooted at root.
func (s *Store) Iterate(_ context.Context, root string, fn func(model.SyncStateEntry) error) error {
	type queued struct {
		path string
		n    *node
	}

	start, ok := s.walk(root, false)
	if !ok {
		return nil
	}

	queue := []queued{{path: model.Canon(root), n: start}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.n.Entry != nil {
			if err := fn(model.SyncStateEntry{
				Path:     cur.path,
				Mtime:    cur.n.Entry.ModificationTime,
				SyncAttr: cur.n.Entry.SyncProperty,
				Valid:    cur.n.Entry.Valid,
			}); err != nil {
				return err
			}
		}

		names := make([]string, 0, len(cur.n.Children))
		for name := range cur.n.Children {
			names = append(names, name)
		}

		for _, name := range names {
			queue = append(queue, queued{path: model.Join(cur.path, name), n: cur.n.Children[name]})
		}
	}

	return nil
}
