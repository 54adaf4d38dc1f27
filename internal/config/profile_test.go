// SPDX-License-Identifier: MPL-2.0

package config

import (
	"testing"

	"github.com/xec-sh/xec-core/internal/core"
)

func TestResolveProfileInheritance(t *testing.T) {
	t.Parallel()

	boolTrue := true
	cfg := &Config{
		Hosts: map[string]HostConfig{
			"build": {Host: "build.internal", Port: 22, Username: "ci"},
		},
		Profiles: map[string]Profile{
			"base": {
				Cwd:            "/srv",
				Env:            map[string]string{"A": "1"},
				ThrowOnNonzero: &boolTrue,
			},
			"build": {
				Extends: "base",
				Host:    "build",
				Env:     map[string]string{"B": "2"},
			},
		},
	}
	if err := checkProfileCycles(cfg.Profiles); err != nil {
		t.Fatalf("checkProfileCycles: %v", err)
	}

	overlay, err := ResolveProfile(cfg, "build")
	if err != nil {
		t.Fatalf("ResolveProfile: %v", err)
	}

	if overlay.Cwd == nil || *overlay.Cwd != "/srv" {
		t.Errorf("expected inherited cwd /srv, got %v", overlay.Cwd)
	}
	if overlay.Env["A"] != "1" || overlay.Env["B"] != "2" {
		t.Errorf("expected merged env from both profiles, got %+v", overlay.Env)
	}
	if overlay.AdapterKind == nil || *overlay.AdapterKind != core.AdapterSSH {
		t.Fatalf("expected ssh adapter kind, got %v", overlay.AdapterKind)
	}
	if overlay.SSH.Host != "build.internal" {
		t.Errorf("expected resolved host, got %q", overlay.SSH.Host)
	}
}

func TestCheckProfileCyclesDetectsCycle(t *testing.T) {
	t.Parallel()

	profiles := map[string]Profile{
		"a": {Extends: "b"},
		"b": {Extends: "a"},
	}
	if err := checkProfileCycles(profiles); err == nil {
		t.Error("expected cycle error, got nil")
	}
}

func TestResolveProfileUnknownHost(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Profiles: map[string]Profile{
			"build": {Host: "missing"},
		},
	}
	if _, err := ResolveProfile(cfg, "build"); err == nil {
		t.Error("expected error for unknown host reference")
	}
}
