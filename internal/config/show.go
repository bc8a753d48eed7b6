package config

import (
	"fmt"
	"io"
	"strings"
)

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config show" command, giving
// users visibility into the effective values after global defaults and
// per-profile overrides have been merged.
func RenderEffective(rp *ResolvedProfile, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration for profile %q\n\n", rp.Name)

	renderProfileSection(ew, rp)
	renderFilterSection(ew, &rp.Filter)
	renderTransfersSection(ew, &rp.Transfers)
	renderSyncSection(ew, &rp.Sync)
	renderLoggingSection(ew, &rp.Logging)
	renderRemoteSection(ew, &rp.Remote)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderProfileSection(ew *errWriter, rp *ResolvedProfile) {
	ew.printf("[profile]\n")
	ew.printf("  name        = %q\n", rp.Name)
	ew.printf("  local_root  = %q\n", rp.LocalRoot)
	ew.printf("  remote_root = %q\n", rp.RemoteRoot)
	ew.printf("\n")
}

func renderFilterSection(ew *errWriter, f *FilterConfig) {
	ew.printf("[filter]\n")
	ew.printf("  skip_dotfiles = %t\n", f.SkipDotfiles)
	ew.printf("  skip_symlinks = %t\n", f.SkipSymlinks)
	ew.printf("  max_file_size = %q\n", f.MaxFileSize)
	ew.printf("  ignore_marker = %q\n", f.IgnoreMarker)

	if len(f.SkipFiles) > 0 {
		ew.printf("  skip_files    = [%s]\n", joinQuoted(f.SkipFiles))
	}

	if len(f.SkipDirs) > 0 {
		ew.printf("  skip_dirs     = [%s]\n", joinQuoted(f.SkipDirs))
	}

	ew.printf("\n")
}

func renderTransfersSection(ew *errWriter, t *TransfersConfig) {
	ew.printf("[transfers]\n")
	ew.printf("  remote_concurrency = %d\n", t.RemoteConcurrency)
	ew.printf("  max_delete_retries = %d\n", t.MaxDeleteRetries)
	ew.printf("  list_parallelism   = %d\n", t.ListParallelism)
	ew.printf("  chunk_size         = %q\n", t.ChunkSize)
	ew.printf("\n")
}

func renderSyncSection(ew *errWriter, s *SyncConfig) {
	ew.printf("[sync]\n")
	ew.printf("  conflict_strategy                = %q\n", s.ConflictStrategy)
	ew.printf("  poll_interval                    = %q\n", s.PollInterval)
	ew.printf("  create_remote_root_on_first_sync = %t\n", s.CreateRemoteRootOnFirstSync)
	ew.printf("  always_recurse_folders           = %t\n", s.AlwaysRecurseFolders)
	ew.printf("  hash_on_mtime_mismatch           = %t\n", s.HashOnMtimeMismatch)
	ew.printf("  dry_run                          = %t\n", s.DryRun)
	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", l.LogLevel)

	if l.LogFile != "" {
		ew.printf("  log_file   = %q\n", l.LogFile)
	}

	ew.printf("  log_format = %q\n", l.LogFormat)
	ew.printf("\n")
}

func renderRemoteSection(ew *errWriter, r *RemoteConfig) {
	ew.printf("[remote]\n")
	ew.printf("  kind     = %q\n", r.Kind)
	ew.printf("  endpoint = %q\n", r.Endpoint)

	if r.WebDAV != (WebDAVWorkarounds{}) {
		ew.printf("  [remote.webdav_workarounds]\n")
		ew.printf("    no_recursive_folder_etags           = %t\n", r.WebDAV.NoRecursiveFolderETags)
		ew.printf("    inconsistent_etags_propfind_get      = %t\n", r.WebDAV.InconsistentETagsUsingPROPFINDAndGET)
		ew.printf("    derive_propfind_etags_from_get_apache = %t\n", r.WebDAV.DerivePROPFINDETagsFromGETETagsForApache)
	}
}

// joinQuoted formats a string slice as comma-separated quoted values.
func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}

	return strings.Join(quoted, ", ")
}
