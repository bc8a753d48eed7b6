// Package hashcache persists the per-path content-hash cache
// internal/changetree's HashOnMtimeMismatch option uses to tell a touch
// apart from an edit across runs, one file per profile.
package hashcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FilePerms matches credstore's: this cache reveals nothing sensitive
// on its own, but there is no reason to be laxer than the rest of the
// profile's on-disk state.
const FilePerms = 0o600

// DirPerms is used when creating the cache file's directory.
const DirPerms = 0o700

// Load reads a profile's hash cache from disk. Returns an empty, non-nil
// map if the file does not exist yet, so callers can always pass the
// result straight to changetree.WithHashOnMtimeMismatch.
func Load(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("hashcache: reading %s: %w", path, err)
	}

	cache := map[string]string{}
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("hashcache: decoding %s: %w", path, err)
	}

	return cache, nil
}

// Save writes cache to disk atomically (write-to-temp + rename),
// mirroring internal/credstore's Save.
func Save(path string, cache map[string]string) error {
	data, err := json.Marshal(cache)
	if err != nil {
		return fmt.Errorf("hashcache: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("hashcache: creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".hashcache-*.tmp")
	if err != nil {
		return fmt.Errorf("hashcache: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("hashcache: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("hashcache: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("hashcache: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("hashcache: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("hashcache: renaming: %w", err)
	}

	success = true

	return nil
}

// Prune removes every cache entry whose path is not in live, so a
// cache does not grow without bound across deletes and renames.
func Prune(cache map[string]string, live map[string]bool) {
	for path := range cache {
		if !live[path] {
			delete(cache, path)
		}
	}
}
