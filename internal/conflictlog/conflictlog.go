// Package conflictlog persists the impossible change combinations
// internal/planner reports via WithConflictSink to an append-only,
// per-profile ledger file (spec.md §9 "Conflict ledger"), so a run's
// conflicts remain inspectable ("foldersync conflicts") after the
// process exits.
package conflictlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/foldersync/foldersync/internal/planner"
)

// FilePerms matches credstore's: the ledger is not secret, but there is
// no reason to be laxer than the rest of the profile's on-disk state.
const FilePerms = 0o600

// DirPerms is used when creating the ledger file's directory.
const DirPerms = 0o700

// Entry is one conflict as recorded in the ledger: a planner.Conflict
// plus the run it occurred in and when.
type Entry struct {
	RunID    string    `json:"run_id"`
	Time     time.Time `json:"time"`
	Path     string    `json:"path"`
	Local    string    `json:"local_change"`
	Remote   string    `json:"remote_change"`
	Strategy string    `json:"strategy"`
	Detail   string    `json:"detail"`
}

// Load reads a profile's ledger from disk, oldest entry first. Returns
// an empty, non-nil slice if the file does not exist yet.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Entry{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("conflictlog: reading %s: %w", path, err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("conflictlog: decoding %s: %w", path, err)
	}

	return entries, nil
}

// Append reads the existing ledger, adds one entry per conflict (all
// stamped with the same runID and at), and writes the result back
// atomically. A run that produced no conflicts is a no-op: Append never
// creates an empty ledger file.
func Append(path, runID string, at time.Time, conflicts []planner.Conflict) error {
	if len(conflicts) == 0 {
		return nil
	}

	existing, err := Load(path)
	if err != nil {
		return err
	}

	for _, c := range conflicts {
		existing = append(existing, Entry{
			RunID:    runID,
			Time:     at,
			Path:     c.Path,
			Local:    c.LocalChange,
			Remote:   c.RemoteChange,
			Strategy: c.Strategy,
			Detail:   c.Detail,
		})
	}

	return save(path, existing)
}

// Clear removes a profile's ledger file, e.g. after the user has reviewed
// and acted on its contents. A missing file is not an error.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("conflictlog: removing %s: %w", path, err)
	}

	return nil
}

func save(path string, entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("conflictlog: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("conflictlog: creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".conflictlog-*.tmp")
	if err != nil {
		return fmt.Errorf("conflictlog: creating temp file: %w", err)
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
		return fmt.Errorf("conflictlog: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("conflictlog: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("conflictlog: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("conflictlog: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("conflictlog: renaming: %w", err)
	}

	success = true

	return nil
}
