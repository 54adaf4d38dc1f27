// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"
	"os"

	"github.com/xec-sh/xec-core/internal/core"
)

// checkProfileCycles walks every profile's Extends chain and fails fast if
// any cycle exists, so ResolveProfile never needs to guard against one at
// resolution time.
func checkProfileCycles(profiles map[string]Profile) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(profiles))

	var visit func(name string, chain []string) error
	visit = func(name string, chain []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("profile extends cycle: %v -> %s", chain, name)
		}
		p, ok := profiles[name]
		if !ok {
			return fmt.Errorf("profile %q extends unknown profile %q", chain[len(chain)-1], name)
		}
		state[name] = visiting
		if p.Extends != "" {
			if err := visit(p.Extends, append(chain, name)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for name := range profiles {
		if err := visit(name, []string{name}); err != nil {
			return err
		}
	}
	return nil
}

// ResolveProfile builds a core.Overlay for the named profile, resolving its
// extends chain depth-first (base first, so the named profile's own fields
// win last-writer-wins over whatever it extends — SPEC_FULL.md §4). Assumes
// checkProfileCycles already validated cfg.Profiles.
func ResolveProfile(cfg *Config, name string) (core.Overlay, error) {
	chain, err := extendsChain(cfg.Profiles, name)
	if err != nil {
		return core.Overlay{}, err
	}

	var overlay core.Overlay
	for _, p := range chain {
		var err error
		overlay, err = mergeProfile(overlay, cfg, p)
		if err != nil {
			return core.Overlay{}, fmt.Errorf("resolve profile %q: %w", name, err)
		}
	}
	return overlay, nil
}

// extendsChain returns the profile chain for name, base (outermost extends)
// first, named profile last.
func extendsChain(profiles map[string]Profile, name string) ([]Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q", name)
	}
	if p.Extends == "" {
		return []Profile{p}, nil
	}
	base, err := extendsChain(profiles, p.Extends)
	if err != nil {
		return nil, err
	}
	return append(base, p), nil
}

func mergeProfile(overlay core.Overlay, cfg *Config, p Profile) (core.Overlay, error) {
	if p.Cwd != "" {
		overlay.Cwd = &p.Cwd
	}
	if len(p.Env) > 0 {
		merged := make(map[string]string, len(overlay.Env)+len(p.Env))
		for k, v := range overlay.Env {
			merged[k] = v
		}
		for k, v := range p.Env {
			merged[k] = v
		}
		overlay.Env = merged
	}
	if p.Timeout != "" {
		if d, err := ParseTimeout(p.Timeout); err == nil {
			ms := d.Milliseconds()
			overlay.TimeoutMs = &ms
		}
	}
	if p.ThrowOnNonzero != nil {
		overlay.ThrowOnNonzero = p.ThrowOnNonzero
	}
	if p.Encoding != "" {
		overlay.Encoding = &p.Encoding
	}

	switch {
	case p.Host != "":
		host, ok := cfg.Hosts[p.Host]
		if !ok {
			return overlay, fmt.Errorf("unknown host %q", p.Host)
		}
		keyBytes := []byte(host.PrivateKey)
		if len(keyBytes) == 0 && host.PrivateKeyPath != "" {
			data, err := os.ReadFile(host.PrivateKeyPath)
			if err != nil {
				return overlay, fmt.Errorf("read private key for host %q: %w", p.Host, err)
			}
			keyBytes = data
		}
		kind := core.AdapterSSH
		overlay.AdapterKind = &kind
		overlay.SSH = &core.SSHDescriptor{
			Host:       host.Host,
			Port:       host.Port,
			User:       host.Username,
			Password:   host.Password,
			PrivateKey: keyBytes,
		}
	case p.Container != "":
		c, ok := cfg.Containers[p.Container]
		if !ok {
			return overlay, fmt.Errorf("unknown container %q", p.Container)
		}
		kind := core.AdapterDocker
		overlay.AdapterKind = &kind
		overlay.Docker = &core.DockerDescriptor{Container: c.Container, ContainerUser: c.User}
	case p.Pod != "":
		pod, ok := cfg.Pods[p.Pod]
		if !ok {
			return overlay, fmt.Errorf("unknown pod %q", p.Pod)
		}
		kind := core.AdapterKubernetes
		overlay.AdapterKind = &kind
		overlay.K8s = &core.K8sOverlay{Pod: &pod.Pod, Namespace: &pod.Namespace, Container: &pod.Container}
	}

	return overlay, nil
}
