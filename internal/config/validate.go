package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// Validation range constants.
const (
	minListParallelism   = 1
	maxListParallelism   = 64
	minRemoteConcurrency = 1
	maxRemoteConcurrency = 64
	minDeleteRetries     = 1
	minPollInterval      = 30 * time.Second
)

// Validate checks all configuration values and returns all errors found. It
// accumulates every error rather than stopping at the first, so users see a
// complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateFilter(&cfg.Filter)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateRemote(&cfg.Remote)...)

	for name, profile := range cfg.Profiles {
		errs = append(errs, validateProfileSections(name, &profile)...)
	}

	return errors.Join(errs...)
}

// ValidateResolved checks cross-field constraints on a fully resolved
// profile. Unlike Validate, which checks raw config file values, this runs
// after global defaults and profile overrides have been merged, catching
// constraints that only make sense on the final result.
func ValidateResolved(rp *ResolvedProfile) error {
	var errs []error

	if rp.LocalRoot == "" {
		errs = append(errs, errors.New("local_root: must not be empty"))
	} else if !filepath.IsAbs(rp.LocalRoot) {
		errs = append(errs, fmt.Errorf("local_root: must be absolute after expansion, got %q", rp.LocalRoot))
	}

	if !strings.HasPrefix(rp.RemoteRoot, "/") {
		errs = append(errs, fmt.Errorf("remote_root: must start with /, got %q", rp.RemoteRoot))
	}

	return errors.Join(errs...)
}

// validateProfileSections runs the same per-section checks against whichever
// sections a profile overrides, so a malformed [profile.x.sync] is caught at
// load time rather than after ResolveProfile silently replaces the global one.
func validateProfileSections(name string, p *Profile) []error {
	var errs []error

	prefix := func(err error) error { return fmt.Errorf("profile %q: %w", name, err) }

	if p.Filter != nil {
		for _, err := range validateFilter(p.Filter) {
			errs = append(errs, prefix(err))
		}
	}

	if p.Transfers != nil {
		for _, err := range validateTransfers(p.Transfers) {
			errs = append(errs, prefix(err))
		}
	}

	if p.Sync != nil {
		for _, err := range validateSync(p.Sync) {
			errs = append(errs, prefix(err))
		}
	}

	if p.Logging != nil {
		for _, err := range validateLogging(p.Logging) {
			errs = append(errs, prefix(err))
		}
	}

	if p.Remote != nil {
		for _, err := range validateRemote(p.Remote) {
			errs = append(errs, prefix(err))
		}
	}

	return errs
}

func validateFilter(f *FilterConfig) []error {
	var errs []error

	if f.MaxFileSize != "" && f.MaxFileSize != "0" {
		if _, err := ParseSize(f.MaxFileSize); err != nil {
			errs = append(errs, fmt.Errorf("max_file_size: %w", err))
		}
	}

	for _, d := range f.SkipDirs {
		if strings.ContainsRune(d, filepath.Separator) || strings.Contains(d, "/") {
			errs = append(errs, fmt.Errorf("skip_dirs: %q must be a bare directory name, not a path", d))
		}
	}

	if f.IgnoreMarker == "" {
		errs = append(errs, errors.New("ignore_marker: must not be empty"))
	}

	return errs
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	if t.RemoteConcurrency < minRemoteConcurrency || t.RemoteConcurrency > maxRemoteConcurrency {
		errs = append(errs, fmt.Errorf("remote_concurrency: must be between %d and %d, got %d",
			minRemoteConcurrency, maxRemoteConcurrency, t.RemoteConcurrency))
	}

	if t.MaxDeleteRetries < minDeleteRetries {
		errs = append(errs, fmt.Errorf("max_delete_retries: must be >= %d, got %d",
			minDeleteRetries, t.MaxDeleteRetries))
	}

	if t.ListParallelism < minListParallelism || t.ListParallelism > maxListParallelism {
		errs = append(errs, fmt.Errorf("list_parallelism: must be between %d and %d, got %d",
			minListParallelism, maxListParallelism, t.ListParallelism))
	}

	if t.ChunkSize != "" {
		if _, err := ParseSize(t.ChunkSize); err != nil {
			errs = append(errs, fmt.Errorf("chunk_size: %w", err))
		}
	}

	return errs
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	errs = append(errs, validateConflictStrategy(s.ConflictStrategy)...)

	if s.PollInterval != "" {
		errs = append(errs, validateDurationMin("poll_interval", s.PollInterval, minPollInterval)...)
	}

	return errs
}

var validConflictStrategies = map[string]bool{
	"local_wins":  true,
	"remote_wins": true,
}

func validateConflictStrategy(s string) []error {
	if !validConflictStrategies[s] {
		return []error{fmt.Errorf("conflict_strategy: must be one of local_wins, remote_wins; got %q", s)}
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}

var validRemoteKinds = map[string]bool{
	"":           true, // unset is allowed until the profile actually runs
	"webdav":     true,
	"dropboxapi": true,
}

func validateRemote(r *RemoteConfig) []error {
	var errs []error

	if !validRemoteKinds[r.Kind] {
		errs = append(errs, fmt.Errorf("remote.kind: must be one of webdav, dropboxapi; got %q", r.Kind))
	}

	if r.Kind != "" && r.Endpoint == "" {
		errs = append(errs, errors.New("remote.endpoint: must not be empty when remote.kind is set"))
	}

	return errs
}

// WarnDeprecatedKeys checks raw TOML metadata for deprecated config keys and
// logs a warning for each one found. The deprecated keys still parse without
// error but their values are silently ignored.
func WarnDeprecatedKeys(md map[string]any, logger *slog.Logger) {
	deprecated := map[string]string{
		"workers":      "transfers.remote_concurrency",
		"delete_retry": "transfers.max_delete_retries",
	}

	for oldKey, newKey := range deprecated {
		if _, ok := md[oldKey]; ok {
			logger.Warn("deprecated config key (value ignored)",
				slog.String("key", oldKey),
				slog.String("replacement", newKey))
		}
	}
}
