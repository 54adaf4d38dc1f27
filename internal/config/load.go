// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	appName        = "xec"
	configFileName = "config"
	configFileExt  = "toml"
)

// LoadOptions controls where Load reads from, mirroring the teacher's
// config.Provider.Load(ctx, LoadOptions) signature.
type LoadOptions struct {
	// ConfigFilePath forces loading from a specific file when set,
	// overriding the XDG search path entirely.
	ConfigFilePath string
	// ConfigDirPath overrides the config directory search when set.
	ConfigDirPath string
}

// Provider loads configuration from explicit options. Load satisfies it via
// viperProvider so callers can swap in a fake for tests.
type Provider interface {
	Load(ctx context.Context, opts LoadOptions) (*Config, error)
}

type viperProvider struct{}

// NewProvider returns the default Viper-backed Provider.
func NewProvider() Provider { return viperProvider{} }

func (viperProvider) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	return Load(opts)
}

// ConfigDir returns the XDG/platform-appropriate directory holding
// config.toml, honoring XDG_CONFIG_HOME on Linux.
func ConfigDir() (string, error) {
	var dir string
	switch runtime.GOOS {
	case "windows":
		dir = os.Getenv("APPDATA")
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("resolve home directory: %w", err)
			}
			dir = filepath.Join(home, "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, "Library", "Application Support")
	default:
		dir = os.Getenv("XDG_CONFIG_HOME")
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("resolve home directory: %w", err)
			}
			dir = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(dir, appName), nil
}

// Load reads config.toml from opts.ConfigFilePath, or opts.ConfigDirPath /
// ConfigDir(), or "." (in that priority order), merges it over
// DefaultConfig's values, decodes TimeoutMs from Timeout, and rejects
// profile inheritance cycles. MemorySnapshotInterval is left as a string and
// aliases are returned as written, not resolved. A missing file is not an
// error: the defaults (plus any XEC_* overrides applied separately via
// ApplyEnvOverrides) are returned as-is.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileExt)

	defaults := DefaultConfig()
	v.SetDefault("defaults.timeout", defaults.Defaults.Timeout)
	v.SetDefault("defaults.shell", defaults.Defaults.Shell)
	v.SetDefault("defaults.throw_on_nonzero", defaults.Defaults.ThrowOnNonzero)
	v.SetDefault("defaults.encoding", defaults.Defaults.Encoding)

	if opts.ConfigFilePath != "" {
		v.SetConfigFile(opts.ConfigFilePath)
	} else {
		dir := opts.ConfigDirPath
		if dir == "" {
			resolved, err := ConfigDir()
			if err != nil {
				return nil, err
			}
			dir = resolved
		}
		v.AddConfigPath(dir)
		v.AddConfigPath(".")
	}

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		cfg = *defaults
	} else if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	normalize(&cfg, defaults)

	timeoutMs, err := ParseTimeout(cfg.Defaults.Timeout)
	if err != nil {
		return nil, fmt.Errorf("defaults.timeout: %w", err)
	}
	cfg.Defaults.TimeoutMs = timeoutMs.Milliseconds()

	if err := checkProfileCycles(cfg.Profiles); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// normalize fills nil maps/slices left zero by an empty or partial decode so
// callers never nil-check Hosts/Containers/Pods/Profiles/Aliases/Plugins.
func normalize(cfg *Config, defaults *Config) {
	if cfg.Hosts == nil {
		cfg.Hosts = map[string]HostConfig{}
	}
	if cfg.Containers == nil {
		cfg.Containers = map[string]ContainerConfig{}
	}
	if cfg.Pods == nil {
		cfg.Pods = map[string]PodConfig{}
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{}
	}
	if cfg.Aliases == nil {
		cfg.Aliases = map[string]string{}
	}
	if cfg.Plugins == nil {
		cfg.Plugins = []string{}
	}
	if cfg.Defaults.Timeout == "" {
		cfg.Defaults.Timeout = defaults.Defaults.Timeout
	}
	if cfg.Defaults.Encoding == "" {
		cfg.Defaults.Encoding = defaults.Defaults.Encoding
	}
}

// Save writes cfg as TOML to ConfigDir()/config.toml, creating the
// directory if needed. Grounded on the teacher's config.Save.
func Save(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path := filepath.Join(dir, configFileName+"."+configFileExt)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
