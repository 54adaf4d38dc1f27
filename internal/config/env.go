// SPDX-License-Identifier: MPL-2.0

package config

import "os"

// EnvConfigPath is read before Load to decide ConfigFilePath and EnvProfile
// is read by ActiveProfile; the others apply afterward via
// ApplyEnvOverrides (spec.md §6 environment variables).
const (
	EnvConfigPath = "XEC_CONFIG"
	EnvProfile    = "XEC_PROFILE"
	EnvTimeout    = "XEC_TIMEOUT"
	EnvShell      = "XEC_SHELL"
	EnvCwd        = "XEC_CWD"
)

// ApplyEnvOverrides mutates cfg.Defaults in place from XEC_TIMEOUT,
// XEC_SHELL, XEC_CWD — whichever are set in the process environment win
// over whatever Load produced.
func ApplyEnvOverrides(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvTimeout); ok && v != "" {
		d, err := ParseTimeout(v)
		if err != nil {
			return err
		}
		cfg.Defaults.Timeout = v
		cfg.Defaults.TimeoutMs = d.Milliseconds()
	}
	if v, ok := os.LookupEnv(EnvShell); ok && v != "" {
		cfg.Defaults.Shell = v
	}
	if v, ok := os.LookupEnv(EnvCwd); ok && v != "" {
		cfg.Defaults.Cwd = v
	}
	return nil
}

// ActiveProfile returns the XEC_PROFILE env value, or "" when unset.
func ActiveProfile() string {
	return os.Getenv(EnvProfile)
}

// ResolveConfigPath returns the XEC_CONFIG env value for use as
// LoadOptions.ConfigFilePath, or "" when unset.
func ResolveConfigPath() string {
	return os.Getenv(EnvConfigPath)
}
