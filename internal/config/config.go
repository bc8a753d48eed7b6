// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for foldersync.
package config

// Config is the top-level configuration structure. It contains named
// profiles and the global sections each profile falls back to. Per-profile
// section overrides completely replace the corresponding global section;
// individual fields are not merged.
type Config struct {
	Profiles  map[string]Profile `toml:"profile"`
	Filter    FilterConfig       `toml:"filter"`
	Transfers TransfersConfig    `toml:"transfers"`
	Sync      SyncConfig         `toml:"sync"`
	Logging   LoggingConfig      `toml:"logging"`
	Remote    RemoteConfig       `toml:"remote"`
}

// FilterConfig controls which files and directories are included in sync.
type FilterConfig struct {
	SkipFiles    []string `toml:"skip_files"`
	SkipDirs     []string `toml:"skip_dirs"`
	SkipDotfiles bool     `toml:"skip_dotfiles"`
	SkipSymlinks bool     `toml:"skip_symlinks"`
	MaxFileSize  string   `toml:"max_file_size"`
	IgnoreMarker string   `toml:"ignore_marker"`
}

// TransfersConfig controls the executor's concurrency and retry budget
// (internal/executor.Config) and how many remote listing calls run in
// parallel while building the remote change tree.
type TransfersConfig struct {
	RemoteConcurrency int    `toml:"remote_concurrency"`
	MaxDeleteRetries  int    `toml:"max_delete_retries"`
	ListParallelism   int    `toml:"list_parallelism"`
	ChunkSize         string `toml:"chunk_size"`
}

// SyncConfig controls the sync pipeline: conflict strategy, first-sync
// bootstrap, polling cadence, and the optional content-hash fallback for
// mtime-only change detection.
type SyncConfig struct {
	ConflictStrategy            string `toml:"conflict_strategy"`
	PollInterval                string `toml:"poll_interval"`
	CreateRemoteRootOnFirstSync bool   `toml:"create_remote_root_on_first_sync"`
	AlwaysRecurseFolders        bool   `toml:"always_recurse_folders"`
	HashOnMtimeMismatch         bool   `toml:"hash_on_mtime_mismatch"`
	DryRun                      bool   `toml:"dry_run"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFile   string `toml:"log_file"`
	LogFormat string `toml:"log_format"`
}

// RemoteConfig selects and configures the backend JobFactory.
type RemoteConfig struct {
	// Kind selects the backend: "webdav" or "dropboxapi".
	Kind     string            `toml:"kind"`
	Endpoint string            `toml:"endpoint"`
	WebDAV   WebDAVWorkarounds `toml:"webdav_workarounds"`
}

// WebDAVWorkarounds are the named server-quirk toggles a WebDAV backend may
// need, modeled as explicit boolean fields rather than a bitset.
type WebDAVWorkarounds struct {
	// NoRecursiveFolderETags: the server doesn't update a folder's ETag
	// when a descendant (not a direct child) changes. Forces recursive
	// listing regardless of ETag - equivalent to SyncConfig's
	// AlwaysRecurseFolders but scoped to the backend that needs it.
	NoRecursiveFolderETags bool `toml:"no_recursive_folder_etags"`

	// InconsistentETagsUsingPROPFINDAndGET: the server reports a
	// different ETag for a GET than for a PROPFIND of the same
	// resource. The backend should trust the PROPFIND-derived ETag.
	InconsistentETagsUsingPROPFINDAndGET bool `toml:"inconsistent_etags_propfind_get"`

	// DerivePROPFINDETagsFromGETETagsForApache: some Apache
	// configurations report PROPFIND ETags of the form Y-ZZZZZ and GET
	// ETags of the form XXXX-Y-ZZZZ; derive the PROPFIND form from the
	// GET form instead of treating them as distinct values.
	DerivePROPFINDETagsFromGETETagsForApache bool `toml:"derive_propfind_etags_from_get_apache"`
}
