// SPDX-License-Identifier: MPL-2.0

// Package config loads the engine's typed configuration: default execution
// options, named hosts/containers/pods, inheritable profiles, command
// aliases, and a plugin list. Loading is backed by Viper (TOML as the
// on-disk format, XDG-aware search path) so a config file is optional — an
// engine with no file on disk still gets DefaultConfig() plus XEC_* env
// overrides.
package config
