// Package credstore persists an already-acquired OAuth2 token to disk, one
// file per profile. It does not perform the login handshake — callers obtain
// a token out-of-band (interactive browser flow, device code flow, or a
// pasted personal access token wrapped in an oauth2.Token) and hand it to
// Save.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// FilePerms restricts credential files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the credentials directory.
const DirPerms = 0o700

// File is the on-disk format for a profile's stored credentials. Includes
// the OAuth token and optional metadata cached from the remote backend
// (account email, workspace name, WebDAV server capabilities).
type File struct {
	Token *oauth2.Token     `json:"token"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Load reads a saved credential file from disk. Returns the OAuth token and
// any cached metadata. Returns (nil, nil, nil) if the file does not exist,
// so callers can distinguish "not logged in yet" from a read error.
func Load(path string) (*oauth2.Token, map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, nil, fmt.Errorf("credstore: reading %s: %w", path, err)
	}

	var cf File
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, nil, fmt.Errorf("credstore: decoding %s: %w", path, err)
	}

	if cf.Token == nil {
		return nil, nil, fmt.Errorf("credstore: %s missing token field (re-login required)", path)
	}

	if cf.Token.AccessToken == "" && cf.Token.RefreshToken == "" {
		return nil, nil, fmt.Errorf("credstore: %s has empty credentials (re-login required)", path)
	}

	return cf.Token, cf.Meta, nil
}

// ReadMeta reads just the metadata from a credential file without loading
// the full token.
func ReadMeta(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("credstore: reading %s: %w", path, err)
	}

	var parsed struct {
		Meta map[string]string `json:"meta"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("credstore: decoding %s: %w", path, err)
	}

	return parsed.Meta, nil
}

// Save writes a credential file to disk atomically (write-to-temp + rename)
// with 0600 permissions. Never logs token values.
func Save(path string, tok *oauth2.Token, meta map[string]string) error {
	if tok == nil {
		return errors.New("credstore: refusing to save nil token")
	}

	cf := File{Token: tok, Meta: meta}

	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("credstore: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("credstore: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename. Same
	// directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".cred-*.tmp")
	if err != nil {
		return fmt.Errorf("credstore: creating temp file: %w", err)
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
		return fmt.Errorf("credstore: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: writing: %w", err)
	}

	// Flush to stable storage before rename so a power loss between close
	// and rename cannot leave an empty or partial credential file behind.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credstore: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("credstore: renaming: %w", err)
	}

	success = true

	return nil
}

// LoadAndMergeMeta reads the current credential file, merges new metadata
// keys (new keys overwrite existing), and saves. Returns an error if the
// file does not exist or has no token.
func LoadAndMergeMeta(path string, meta map[string]string) error {
	tok, existingMeta, err := Load(path)
	if err != nil {
		return fmt.Errorf("reading credentials for metadata update: %w", err)
	}

	if tok == nil {
		return fmt.Errorf("no credential file at %s", path)
	}

	if existingMeta == nil {
		existingMeta = make(map[string]string, len(meta))
	}

	maps.Copy(existingMeta, meta)

	return Save(path, tok, existingMeta)
}

// Delete removes a profile's credential file. Used by "auth logout" and by
// profile-removal commands. A missing file is not an error.
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("credstore: removing %s: %w", path, err)
	}

	return nil
}

// Exists reports whether a profile has stored credentials.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
