package changetree

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/text/unicode/norm"

	"github.com/foldersync/foldersync/internal/model"
	"github.com/foldersync/foldersync/internal/statedb"
)

// Filter is invoked on every local and every remote entry before it
// enters a tree; returning false excludes the entry and, for a
// directory, everything under it (spec.md §6 "Filter callback").
type Filter func(path string, info model.FileInfo) bool

// AllowAll is a Filter that excludes nothing.
func AllowAll(string, model.FileInfo) bool { return true }

// LocalOption configures optional BuildLocal behavior beyond its
// required arguments.
type LocalOption func(*localBuildConfig)

type localBuildConfig struct {
	hashOnMtimeMismatch bool
	hashCache           map[string]string
}

// WithHashOnMtimeMismatch resolves spec.md §9's "mtime vs. content" open
// question: when a local file's mtime differs from the stored value,
// compute its content hash before deciding Change=ChangeChanged. If the
// hash still matches the value cache has for path (from a prior run),
// the mtime-only difference is treated as no change — a touch without
// an edit does not trigger a redundant upload. cache is mutated in
// place with every hash BuildLocal computes; callers own its
// persistence across runs (internal/hashcache).
func WithHashOnMtimeMismatch(cache map[string]string) LocalOption {
	return func(c *localBuildConfig) {
		c.hashOnMtimeMismatch = true
		c.hashCache = cache
	}
}

// BuildLocal walks rootDir's filesystem breadth-first, comparing each
// path to store, and returns the local ChangeTree (spec.md §4.2).
// Paths are reported relative to rootDir, canonicalized per
// internal/model.Canon.
func BuildLocal(ctx context.Context, rootDir string, store statedb.Store, filter Filter, opts ...LocalOption) (*Node, error) {
	if filter == nil {
		filter = AllowAll
	}

	var cfg localBuildConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	root := NewDir()

	type queued struct {
		path string
		node *Node
	}

	queue := []queued{{path: "/", node: root}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dbChildren, err := store.Children(ctx, cur.path)
		if err != nil {
			return nil, fmt.Errorf("changetree: local: db children of %s: %w", cur.path, err)
		}

		known := make(map[string]model.SyncStateEntry, len(dbChildren))
		for _, e := range dbChildren {
			known[model.Base(e.Path)] = e
		}

		entries, err := os.ReadDir(physicalPath(rootDir, cur.path))
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("changetree: local: read dir %s: %w", cur.path, err)
		}

		seen := make(map[string]bool, len(entries))

		for _, de := range entries {
			name := norm.NFC.String(de.Name())
			childPath := model.Join(cur.path, name)

			kind := model.KindFile
			if de.IsDir() {
				kind = model.KindDirectory
			}

			fi := model.FileInfo{Kind: kind, Name: name}
			if !filter(childPath, fi) {
				continue
			}

			seen[name] = true

			info, err := de.Info()
			if err != nil {
				return nil, fmt.Errorf("changetree: local: stat %s: %w", childPath, err)
			}

			node := cur.node.Child(name)
			node.Kind = kind

			dbEntry, wasKnown := known[name]

			switch {
			case kind == model.KindDirectory:
				if !wasKnown {
					node.Change = ChangeCreated
				}

				queue = append(queue, queued{path: childPath, node: node})

			case wasKnown:
				mtime := info.ModTime().UnixNano()
				node.Mtime = mtime
				node.SyncAttr = dbEntry.SyncAttr

				if mtime != dbEntry.Mtime {
					if cfg.hashOnMtimeMismatch {
						changed, hashErr := hashChanged(physicalPath(rootDir, childPath), childPath, cfg.hashCache)
						if hashErr != nil {
							return nil, fmt.Errorf("changetree: local: hash %s: %w", childPath, hashErr)
						}

						if changed {
							node.Change = ChangeChanged
						}
					} else {
						node.Change = ChangeChanged
					}
				} else if cfg.hashOnMtimeMismatch {
					// Seed the cache for an unchanged file, so a later
					// mtime-only difference has a hash to compare against.
					if _, cached := cfg.hashCache[childPath]; !cached {
						if _, hashErr := hashChanged(physicalPath(rootDir, childPath), childPath, cfg.hashCache); hashErr != nil {
							return nil, fmt.Errorf("changetree: local: hash %s: %w", childPath, hashErr)
						}
					}
				}

			default:
				node.Change = ChangeCreated
				node.Mtime = info.ModTime().UnixNano()

				if cfg.hashOnMtimeMismatch {
					// Seed the cache for a new file too.
					if _, hashErr := hashChanged(physicalPath(rootDir, childPath), childPath, cfg.hashCache); hashErr != nil {
						return nil, fmt.Errorf("changetree: local: hash %s: %w", childPath, hashErr)
					}
				}
			}
		}

		for name, dbEntry := range known {
			if seen[name] {
				continue
			}

			childPath := model.Join(cur.path, name)
			if err := markDeletedSubtree(ctx, store, cur.node, name, childPath, dbEntry); err != nil {
				return nil, err
			}
		}
	}

	Normalize(root)

	return root, nil
}

// markDeletedSubtree records dbPath and every descendant the database
// still knows about as Change=Deleted, inferring Kind from whether the
// stored entry itself has children (the database carries no explicit
// kind field).
func markDeletedSubtree(
	ctx context.Context, store statedb.Store, parent *Node, name, dbPath string, entry model.SyncStateEntry,
) error {
	node := parent.Child(name)
	node.Change = ChangeDeleted
	node.Mtime = entry.Mtime
	node.SyncAttr = entry.SyncAttr

	children, err := store.Children(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("changetree: local: db children of deleted %s: %w", dbPath, err)
	}

	if len(children) == 0 {
		node.Kind = model.KindFile
		return nil
	}

	node.Kind = model.KindDirectory

	for _, child := range children {
		childName := model.Base(child.Path)
		if err := markDeletedSubtree(ctx, store, node, childName, child.Path, child); err != nil {
			return err
		}
	}

	return nil
}

// hashChanged reports whether physicalFile's content hash differs from
// the one cache holds for canonPath, updating cache with the freshly
// computed hash either way. A path absent from cache is treated as
// changed (nothing to compare against yet).
func hashChanged(physicalFile, canonPath string, cache map[string]string) (bool, error) {
	f, err := os.Open(physicalFile)
	if err != nil {
		return false, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}

	sum := hex.EncodeToString(h.Sum(nil))

	prev, known := cache[canonPath]
	cache[canonPath] = sum

	return !known || prev != sum, nil
}

func physicalPath(rootDir, canonPath string) string {
	if canonPath == "/" {
		return rootDir
	}

	return filepath.Join(rootDir, filepath.FromSlash(canonPath))
}
