package config

import "github.com/foldersync/foldersync/internal/executor"

// Default values for configuration options. These are the starting point
// for TOML decoding (so unset fields retain defaults) and the fallback
// when no config file exists.
const (
	defaultIgnoreMarker     = ".syncignore"
	defaultMaxFileSize      = "10GB"
	defaultChunkSize        = "10MiB"
	defaultListParallelism  = 8
	defaultPollInterval     = "5m"
	defaultConflictStrategy = "local_wins"
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
)

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Profiles:  make(map[string]Profile),
		Filter:    defaultFilterConfig(),
		Transfers: defaultTransfersConfig(),
		Sync:      defaultSyncConfig(),
		Logging:   defaultLoggingConfig(),
	}
}

func defaultFilterConfig() FilterConfig {
	return FilterConfig{
		SkipDotfiles: true,
		SkipSymlinks: true,
		MaxFileSize:  defaultMaxFileSize,
		IgnoreMarker: defaultIgnoreMarker,
	}
}

func defaultTransfersConfig() TransfersConfig {
	return TransfersConfig{
		RemoteConcurrency: executor.DefaultRemoteConcurrency,
		MaxDeleteRetries:  executor.DefaultMaxDeleteRetries,
		ListParallelism:   defaultListParallelism,
		ChunkSize:         defaultChunkSize,
	}
}

func defaultSyncConfig() SyncConfig {
	return SyncConfig{
		ConflictStrategy: defaultConflictStrategy,
		PollInterval:     defaultPollInterval,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}
