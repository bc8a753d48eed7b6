package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// CLIOverrides carries config-path and profile selections taken from command
// line flags, which outrank both the environment and the platform default.
type CLIOverrides struct {
	ConfigPath string
	Profile    string
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown top-level or section keys are reported as
// errors via the TOML decoder's metadata rather than silently ignored.
func Load(path string, logger *slog.Logger) (*Config, error) {
	logger.Debug("loading config file", "path", path)

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}

		return nil, fmt.Errorf("config file %s: unknown keys: %v", path, keys)
	}

	var rawMap map[string]any
	if _, decodeErr := toml.Decode(string(data), &rawMap); decodeErr == nil {
		WarnDeprecatedKeys(rawMap, logger)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("config file parsed successfully",
		"path", path,
		"profile_count", len(cfg.Profiles),
	)

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. This supports a zero-config
// first run: users can start syncing before ever creating a config file, as
// long as a profile is supplied some other way (env/CLI).
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("config file not found, using defaults", "path", path)

		return DefaultConfig(), nil
	}

	return Load(path, logger)
}

// ResolveConfigPath determines the config file path using the three-layer
// priority: CLI flag > environment variable > platform default. This is the
// single correct implementation of config path resolution; all callers
// should use this rather than reading FOLDERSYNC_CONFIG or flags directly.
func ResolveConfigPath(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) string {
	cfgPath := DefaultConfigPath()
	source := "default"

	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
		source = "env"
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
		source = "cli"
	}

	logger.Debug("config path resolved", "path", cfgPath, "source", source)

	return cfgPath
}

// ResolveActiveProfile loads configuration and resolves the named profile
// using the three-layer priority (CLI > env > default) for the profile name
// and the config file path, then applies ValidateResolved.
func ResolveActiveProfile(env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*ResolvedProfile, *Config, error) {
	cfgPath := ResolveConfigPath(env, cli, logger)

	cfg, err := LoadOrDefault(cfgPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	profileName := env.Profile
	if cli.Profile != "" {
		profileName = cli.Profile
	}

	logger.Debug("profile selector resolved",
		"selector", profileName,
		"source_env", env.Profile,
		"source_cli", cli.Profile,
	)

	resolved, err := ResolveProfile(cfg, profileName)
	if err != nil {
		return nil, nil, err
	}

	if env.LocalRoot != "" {
		resolved.LocalRoot = env.LocalRoot
		logger.Debug("env override applied", "local_root", resolved.LocalRoot)
	}

	if err := ValidateResolved(resolved); err != nil {
		return nil, nil, fmt.Errorf("config validation: %w", err)
	}

	return resolved, cfg, nil
}
