// SPDX-License-Identifier: MPL-2.0

package config

// Defaults holds the baseline execution options every Command falls back to
// absent a more specific override (spec.md §6 configuration schema).
type Defaults struct {
	// Timeout accepts the raw config string (NNN, NNNms, Ns, Nm, Nh); use
	// ParseTimeout on it, or read TimeoutMs once the config is loaded.
	Timeout        string            `toml:"timeout" mapstructure:"timeout"`
	Shell          string            `toml:"shell" mapstructure:"shell"`
	Cwd            string            `toml:"cwd" mapstructure:"cwd"`
	Env            map[string]string `toml:"env" mapstructure:"env"`
	ThrowOnNonzero bool              `toml:"throw_on_nonzero" mapstructure:"throw_on_nonzero"`
	Encoding       string            `toml:"encoding" mapstructure:"encoding"`

	// TimeoutMs is derived from Timeout during Load; zero means unset.
	TimeoutMs int64 `toml:"-" mapstructure:"-"`

	// MemorySnapshotInterval gates the engine's opt-in runtime.MemStats
	// sampler (spec.md §6 "memory:snapshot", SPEC_FULL.md §4). Accepts the
	// same duration-string grammar as Timeout; zero/empty disables it.
	MemorySnapshotInterval string `toml:"memory_snapshot_interval" mapstructure:"memory_snapshot_interval"`
}

// HostConfig names an SSH target (spec.md §6 `hosts {name -> ...}`).
type HostConfig struct {
	Host           string `toml:"host" mapstructure:"host"`
	Port           int    `toml:"port" mapstructure:"port"`
	Username       string `toml:"username" mapstructure:"username"`
	Password       string `toml:"password" mapstructure:"password"`
	PrivateKey     string `toml:"private_key" mapstructure:"private_key"`
	PrivateKeyPath string `toml:"private_key_path" mapstructure:"private_key_path"`
}

// ContainerConfig names a Docker target (spec.md §6 `containers {name -> ...}`).
type ContainerConfig struct {
	Container string `toml:"container" mapstructure:"container"`
	User      string `toml:"user" mapstructure:"user"`
}

// PodConfig names a Kubernetes target (spec.md §6 `pods {name -> ...}`).
type PodConfig struct {
	Pod       string `toml:"pod" mapstructure:"pod"`
	Namespace string `toml:"namespace" mapstructure:"namespace"`
	Container string `toml:"container" mapstructure:"container"`
}

// Profile is a named partial overlay, optionally extending another profile
// (spec.md §6 `profiles {name -> partial overlay, optional extends:other}`).
// Fields mirror Defaults plus an optional adapter selection; empty/zero
// means "not set by this profile" (pointers would be more precise, but
// mapstructure-decoded TOML tables read more naturally as plain fields here
// — ResolveProfile treats the zero value of each field as unset).
type Profile struct {
	Extends string `toml:"extends" mapstructure:"extends"`

	Timeout        string            `toml:"timeout" mapstructure:"timeout"`
	Shell          string            `toml:"shell" mapstructure:"shell"`
	Cwd            string            `toml:"cwd" mapstructure:"cwd"`
	Env            map[string]string `toml:"env" mapstructure:"env"`
	ThrowOnNonzero *bool             `toml:"throw_on_nonzero" mapstructure:"throw_on_nonzero"`
	Encoding       string            `toml:"encoding" mapstructure:"encoding"`

	Host      string `toml:"host" mapstructure:"host"`
	Container string `toml:"container" mapstructure:"container"`
	Pod       string `toml:"pod" mapstructure:"pod"`
}

// Config is the engine's complete typed configuration (spec.md §6).
type Config struct {
	Defaults   Defaults                   `toml:"defaults" mapstructure:"defaults"`
	Hosts      map[string]HostConfig      `toml:"hosts" mapstructure:"hosts"`
	Containers map[string]ContainerConfig `toml:"containers" mapstructure:"containers"`
	Pods       map[string]PodConfig       `toml:"pods" mapstructure:"pods"`
	Profiles   map[string]Profile         `toml:"profiles" mapstructure:"profiles"`
	Aliases    map[string]string          `toml:"aliases" mapstructure:"aliases"`
	Plugins    []string                   `toml:"plugins" mapstructure:"plugins"`
}

// DefaultConfig returns the configuration an engine uses with no file on
// disk and no env overrides.
func DefaultConfig() *Config {
	return &Config{
		Defaults: Defaults{
			Timeout:        "30s",
			Shell:          "",
			ThrowOnNonzero: true,
			Encoding:       "utf8",
		},
		Hosts:      map[string]HostConfig{},
		Containers: map[string]ContainerConfig{},
		Pods:       map[string]PodConfig{},
		Profiles:   map[string]Profile{},
		Aliases:    map[string]string{},
		Plugins:    []string{},
	}
}
