package changetree

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/foldersync/foldersync/internal/model"
	"github.com/foldersync/foldersync/internal/remotejob"
	"github.com/foldersync/foldersync/internal/statedb"
)

// BuildRemote dispatches to the builder matching factory's declared
// change-detection mode (spec.md §4.3). nextCursor is non-empty only for
// ModeRootStreamCursor backends; callers persist it (as the root entry's
// sync-attribute) once the run that consumed this tree has committed.
func BuildRemote(
	ctx context.Context, factory remotejob.JobFactory, store statedb.Store, filter Filter, parallelism int,
) (tree *Node, nextCursor string, err error) {
	if filter == nil {
		filter = AllowAll
	}

	if parallelism < 1 {
		parallelism = 1
	}

	switch factory.ChangeMode() {
	case remotejob.ModeRootStreamCursor:
		return buildRemoteCursor(ctx, factory, store, filter)
	default:
		tree, err = buildRemoteFolderSyncAttr(ctx, factory, store, filter, parallelism)
		return tree, "", err
	}
}

// buildRemoteFolderSyncAttr implements spec.md §4.3's folder-sync-attribute
// mode: per-folder ETag-style comparison, with bounded concurrent fan-out
// over a shared queue of folders still needing a listing.
func buildRemoteFolderSyncAttr(
	ctx context.Context, factory remotejob.JobFactory, store statedb.Store, filter Filter, parallelism int,
) (*Node, error) {
	root := NewDir()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	var processFolder func(path string, node *Node) error

	processFolder = func(path string, node *Node) error {
		dbEntry, known, err := store.Get(gctx, path)
		if err != nil {
			return fmt.Errorf("changetree: remote: db get %s: %w", path, err)
		}

		result, err := factory.ListFiles(gctx, path, remotejob.ListOptions{})
		if err != nil {
			return fmt.Errorf("changetree: remote: list %s: %w", path, err)
		}

		folderAttr := result.Folder.SyncAttr
		unchanged := known && dbEntry.SyncAttr != "" && dbEntry.SyncAttr == folderAttr

		if unchanged && !factory.AlwaysRecurse() {
			return nil
		}

		node.Kind = model.KindDirectory

		if !unchanged {
			if !known || dbEntry.SyncAttr == "" {
				node.Change = ChangeCreated
			} else {
				node.Change = ChangeChanged
			}

			node.SyncAttr = folderAttr
		}

		seen := map[string]bool{}

		for _, child := range result.Children {
			childPath := model.Join(path, child.Name)
			if !filter(childPath, child) {
				continue
			}

			seen[child.Name] = true

			dbChild, childKnown, err := store.Get(gctx, childPath)
			if err != nil {
				return fmt.Errorf("changetree: remote: db get %s: %w", childPath, err)
			}

			childChanged := !childKnown || dbChild.SyncAttr != child.SyncAttr
			childNode := node.Child(child.Name)

			if child.Kind == model.KindDirectory {
				if childChanged {
					childNode.Kind = model.KindDirectory
					if !childKnown {
						childNode.Change = ChangeCreated
					} else {
						childNode.Change = ChangeChanged
					}

					childNode.SyncAttr = child.SyncAttr
				}

				if childChanged || factory.AlwaysRecurse() {
					next := childNode
					nextPath := childPath

					g.Go(func() error { return processFolder(nextPath, next) })
				}

				continue
			}

			if childChanged {
				childNode.Kind = model.KindFile
				if !childKnown {
					childNode.Change = ChangeCreated
				} else {
					childNode.Change = ChangeChanged
				}

				childNode.SyncAttr = child.SyncAttr
			}
		}

		dbChildren, err := store.Children(gctx, path)
		if err != nil {
			return fmt.Errorf("changetree: remote: db children of %s: %w", path, err)
		}

		for _, dbChild := range dbChildren {
			name := model.Base(dbChild.Path)
			if seen[name] {
				continue
			}

			if err := markDeletedSubtree(gctx, store, node, name, dbChild.Path, dbChild); err != nil {
				return err
			}
		}

		return nil
	}

	g.Go(func() error { return processFolder("/", root) })

	if err := g.Wait(); err != nil {
		return nil, err
	}

	Normalize(root)

	return root, nil
}

// buildRemoteCursor implements spec.md §4.3's root-stream-cursor mode: a
// single recursive listing at root returning every entry changed since
// the stored cursor, or every entry on first run. The cursor is
// persisted as the sync-attribute of the root database entry.
func buildRemoteCursor(
	ctx context.Context, factory remotejob.JobFactory, store statedb.Store, filter Filter,
) (*Node, string, error) {
	root := NewDir()

	rootEntry, _, err := store.Get(ctx, model.RootMarkerPath)
	if err != nil {
		return nil, "", fmt.Errorf("changetree: remote: db get root: %w", err)
	}

	result, err := factory.ListFiles(ctx, "/", remotejob.ListOptions{Recursive: true, Cursor: rootEntry.SyncAttr})
	if err != nil {
		return nil, "", fmt.Errorf("changetree: remote: cursor list: %w", err)
	}

	for _, entry := range result.Children {
		// Root-stream-cursor backends report each changed entry's full
		// canonical path as Name, since a single flat listing spans many
		// directories and a bare basename would be ambiguous.
		path := model.Canon(entry.Name)

		if !filter(path, entry) {
			continue
		}

		node := ensureNode(root, path)

		dbEntry, known, err := store.Get(ctx, path)
		if err != nil {
			return nil, "", fmt.Errorf("changetree: remote: db get %s: %w", path, err)
		}

		if entry.Kind == model.KindDeleted {
			node.Change = ChangeDeleted
			node.Mtime = dbEntry.Mtime
			node.SyncAttr = dbEntry.SyncAttr

			if known {
				children, err := store.Children(ctx, path)
				if err != nil {
					return nil, "", err
				}

				node.Kind = model.KindFile
				if len(children) > 0 {
					node.Kind = model.KindDirectory
				}
			}

			continue
		}

		node.Kind = entry.Kind
		node.SyncAttr = entry.SyncAttr

		if !known || dbEntry.SyncAttr != entry.SyncAttr {
			if !known {
				node.Change = ChangeCreated
			} else {
				node.Change = ChangeChanged
			}
		}
	}

	Normalize(root)

	return root, result.NextCursor, nil
}

// ensureNode walks/creates intermediate directory nodes from root down to
// path, returning the (possibly freshly created) node at path.
func ensureNode(root *Node, path string) *Node {
	path = model.Canon(path)
	if path == "/" {
		return root
	}

	segs := splitSegments(path)
	cur := root

	for _, seg := range segs {
		cur = cur.Child(seg)
		if cur.Kind == model.KindInvalid {
			cur.Kind = model.KindDirectory
		}
	}

	return cur
}

func splitSegments(path string) []string {
	var segs []string

	start := 1 // skip leading "/"
	for i := 1; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			segs = append(segs, path[start:i])
			start = i + 1
		}
	}

	return segs
}
