// SPDX-License-Identifier: MPL-2.0

package adapter

import (
	"fmt"
	"sync"

	"github.com/xec-sh/xec-core/internal/core"
)

// Factory builds an Adapter for a given descriptor kind, on demand. Each
// concrete adapter package (internal/localexec, internal/sshexec, ...)
// exposes a Factory and the engine registers it once at construction.
type Factory func() (Adapter, error)

// Registry maps an AdapterKind to a lazily-constructed, memoized Adapter
// instance. One Registry belongs to exactly one Engine; disposing the
// registry disposes every adapter it has constructed, exactly once, and
// swallows per-adapter errors so one failure can't mask another (spec.md
// §4.1 Engine.dispose contract).
type Registry struct {
	mu        sync.Mutex
	factories map[core.AdapterKind]Factory
	instances map[core.AdapterKind]Adapter
	disposed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[core.AdapterKind]Factory),
		instances: make(map[core.AdapterKind]Adapter),
	}
}

// Register installs the factory for kind, replacing any previous one.
// It holds the registry mutex, so it is safe to call concurrently with
// Get/Dispose.
func (r *Registry) Register(kind core.AdapterKind, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Get returns the memoized Adapter for kind, constructing it on first use.
func (r *Registry) Get(kind core.AdapterKind) (Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return nil, &core.DisposedError{Component: "Engine"}
	}
	if a, ok := r.instances[kind]; ok {
		return a, nil
	}
	f, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for kind %q", kind)
	}
	a, err := f()
	if err != nil {
		return nil, err
	}
	r.instances[kind] = a
	return a, nil
}

// Dispose disposes every constructed adapter exactly once. Idempotent:
// calling it again is a no-op. Per-adapter errors are collected but do not
// stop disposal of the rest; the caller receives them as a slice.
func (r *Registry) Dispose() []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return nil
	}
	r.disposed = true

	var errs []error
	for kind, a := range r.instances {
		if err := a.Dispose(); err != nil {
			errs = append(errs, fmt.Errorf("dispose %s adapter: %w", kind, err))
		}
	}
	r.instances = make(map[core.AdapterKind]Adapter)
	return errs
}

// Disposed reports whether Dispose has already run.
func (r *Registry) Disposed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed
}
