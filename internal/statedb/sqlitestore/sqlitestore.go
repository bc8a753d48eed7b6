// Package sqlitestore implements statedb.Store on top of a single SQLite
// table, using the pure-Go modernc.org/sqlite driver and goose-managed
// embedded migrations.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/foldersync/foldersync/internal/model"
	"github.com/foldersync/foldersync/internal/statedb"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// walJournalSizeLimit bounds the WAL file so a long sync run can't grow it
// unboundedly (64 MiB).
const walJournalSizeLimit = 67108864

// Store is a statedb.Store backed by a SQLite database file. The zero
// value is not usable; construct with New.
type Store struct {
	path   string
	logger *slog.Logger

	db *sql.DB

	stmtGet       *sql.Stmt
	stmtUpsert    *sql.Stmt
	stmtChildren  *sql.Stmt
	stmtDeleteOne *sql.Stmt
}

// New returns a Store that will open path on Open. Use ":memory:" for
// tests. logger defaults to slog.Default() if nil.
func New(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{path: path, logger: logger}
}

var _ statedb.Store = (*Store)(nil)

// Open acquires the database handle, applies pragmas, and runs any
// pending migrations. Opening a non-existent file creates it empty.
func (s *Store) Open(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("statedb: open sqlite %s: %w", s.path, err)
	}

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return err
	}

	if err := runMigrations(ctx, db, s.logger); err != nil {
		db.Close()
		return err
	}

	s.db = db

	if err := s.prepare(ctx); err != nil {
		db.Close()
		s.db = nil

		return err
	}

	s.logger.Debug("statedb: opened", "path", s.path)

	return nil
}

func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("statedb: set pragma %q: %w", p, err)
		}
	}

	return nil
}

func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("statedb: migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("statedb: migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("statedb: run migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("statedb: applied migration", "source", r.Source.Path)
	}

	return nil
}

func (s *Store) prepare(ctx context.Context) error {
	var err error

	s.stmtGet, err = s.db.PrepareContext(ctx,
		`SELECT mtime, sync_attr, valid FROM files WHERE parent = ? AND entry = ?`)
	if err != nil {
		return fmt.Errorf("statedb: prepare get: %w", err)
	}

	s.stmtUpsert, err = s.db.PrepareContext(ctx, `
		INSERT INTO files (parent, entry, mtime, sync_attr, valid)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(parent, entry) DO UPDATE SET
			mtime = excluded.mtime,
			sync_attr = excluded.sync_attr,
			valid = excluded.valid`)
	if err != nil {
		return fmt.Errorf("statedb: prepare upsert: %w", err)
	}

	s.stmtChildren, err = s.db.PrepareContext(ctx,
		`SELECT parent, entry, mtime, sync_attr, valid FROM files WHERE parent = ?`)
	if err != nil {
		return fmt.Errorf("statedb: prepare children: %w", err)
	}

	s.stmtDeleteOne, err = s.db.PrepareContext(ctx,
		`DELETE FROM files WHERE parent = ? AND entry = ?`)
	if err != nil {
		return fmt.Errorf("statedb: prepare delete-one: %w", err)
	}

	return nil
}

// Close releases the database handle. Safe to call once after a
// successful Open; re-opening afterwards is supported.
func (s *Store) Close(_ context.Context) error {
	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	if err != nil {
		return fmt.Errorf("statedb: close: %w", err)
	}

	return nil
}

// Put inserts or overwrites the entry at entry.Path.
func (s *Store) Put(ctx context.Context, entry model.SyncStateEntry) error {
	parent, leaf := split(entry.Path)

	valid := 0
	if entry.Valid {
		valid = 1
	}

	if _, err := s.stmtUpsert.ExecContext(ctx, parent, leaf, entry.Mtime, entry.SyncAttr, valid); err != nil {
		return fmt.Errorf("statedb: put %s: %w", entry.Path, err)
	}

	return nil
}

// Get performs an exact-match lookup.
func (s *Store) Get(ctx context.Context, path string) (model.SyncStateEntry, bool, error) {
	parent, leaf := split(path)

	var (
		mtime    int64
		syncAttr string
		valid    int
	)

	err := s.stmtGet.QueryRowContext(ctx, parent, leaf).Scan(&mtime, &syncAttr, &valid)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SyncStateEntry{}, false, nil
	}

	if err != nil {
		return model.SyncStateEntry{}, false, fmt.Errorf("statedb: get %s: %w", path, err)
	}

	return model.SyncStateEntry{
		Path:     model.Canon(path),
		Mtime:    mtime,
		SyncAttr: syncAttr,
		Valid:    valid != 0,
	}, true, nil
}

// Children returns the direct children of path, excluding path itself.
func (s *Store) Children(ctx context.Context, path string) ([]model.SyncStateEntry, error) {
	dirKey := dirKeyOf(path)

	rows, err := s.stmtChildren.QueryContext(ctx, dirKey)
	if err != nil {
		return nil, fmt.Errorf("statedb: children of %s: %w", path, err)
	}
	defer rows.Close()

	var out []model.SyncStateEntry

	for rows.Next() {
		var (
			parent, leaf string
			mtime        int64
			syncAttr     string
			valid        int
		)

		if err := rows.Scan(&parent, &leaf, &mtime, &syncAttr, &valid); err != nil {
			return nil, fmt.Errorf("statedb: scan child of %s: %w", path, err)
		}

		if parent == "" && leaf == "" {
			// The root marker row shares the root's dirKey; it is not a child.
			continue
		}

		out = append(out, model.SyncStateEntry{
			Path:     join(parent, leaf),
			Mtime:    mtime,
			SyncAttr: syncAttr,
			Valid:    valid != 0,
		})
	}

	return out, rows.Err()
}

// DeleteSubtree removes the entry at path and every descendant.
func (s *Store) DeleteSubtree(ctx context.Context, path string) error {
	dirKey := dirKeyOf(path)
	parent, leaf := split(path)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("statedb: delete-subtree %s: begin: %w", path, err)
	}

	prefix := dirKey + "/"
	descendants := `DELETE FROM files WHERE parent = ? OR substr(parent, 1, length(?)) = ?`
	args := []any{dirKey, prefix, prefix}

	if dirKey == "" {
		// Every stored row lies under the root.
		descendants = `DELETE FROM files`
		args = nil
	}

	if _, err := tx.ExecContext(ctx, descendants, args...); err != nil {
		tx.Rollback() //nolint:errcheck

		return fmt.Errorf("statedb: delete-subtree %s: descendants: %w", path, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM files WHERE parent = ? AND entry = ?`, parent, leaf); err != nil {
		tx.Rollback() //nolint:errcheck

		return fmt.Errorf("statedb: delete-subtree %s: self: %w", path, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("statedb: delete-subtree %s: commit: %w", path, err)
	}

	return nil
}

// DeleteOne removes only the entry at path; descendants survive.
func (s *Store) DeleteOne(ctx context.Context, path string) error {
	parent, leaf := split(path)

	if _, err := s.stmtDeleteOne.ExecContext(ctx, parent, leaf); err != nil {
		return fmt.Errorf("statedb: delete-one %s: %w", path, err)
	}

	return nil
}

// Iterate performs a breadth-first walk over the subtree rooted at root.
func (s *Store) Iterate(ctx context.Context, root string, fn func(model.SyncStateEntry) error) error {
	queue := []string{model.Canon(root)}

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		entry, ok, err := s.Get(ctx, p)
		if err != nil {
			return err
		}

		if ok {
			if err := fn(entry); err != nil {
				return err
			}
		}

		children, err := s.Children(ctx, p)
		if err != nil {
			return err
		}

		for _, c := range children {
			queue = append(queue, c.Path)
		}
	}

	return nil
}

// split returns the (parent, entry) column values for a canonical path:
// "/a/b/c" -> ("a/b", "c"); "/" -> ("", "").
func split(path string) (parent, entry string) {
	p := model.Canon(path)
	if p == "/" {
		return "", ""
	}

	return dirKeyOf(p), model.Base(p)
}

// dirKeyOf returns the "parent" column value used when path is itself the
// parent: "/" -> "", "/a" -> "a", "/a/b" -> "a/b".
func dirKeyOf(path string) string {
	p := model.Canon(path)
	if p == "/" {
		return ""
	}

	return strings.TrimPrefix(p, "/")
}

// join rebuilds a canonical path from stored (parent, entry) columns.
func join(parent, entry string) string {
	if parent == "" && entry == "" {
		return "/"
	}

	if parent == "" {
		return "/" + entry
	}

	return "/" + parent + "/" + entry
}
