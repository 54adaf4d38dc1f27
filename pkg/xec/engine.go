// SPDX-License-Identifier: MPL-2.0

package xec

import (
	"context"
	"errors"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xec-sh/xec-core/internal/adapter"
	"github.com/xec-sh/xec-core/internal/config"
	"github.com/xec-sh/xec-core/internal/core"
	"github.com/xec-sh/xec-core/internal/dockerexec"
	"github.com/xec-sh/xec-core/internal/eventbus"
	"github.com/xec-sh/xec-core/internal/k8sexec"
	"github.com/xec-sh/xec-core/internal/localexec"
	"github.com/xec-sh/xec-core/internal/sshexec"
)

// Type aliases re-export the core data model so callers never import
// internal/core directly (spec.md §3).
type (
	Command  = core.Command
	Result   = core.Result
	Overlay  = core.Overlay
	K8sOverlay = core.K8sOverlay

	SSHDescriptor    = core.SSHDescriptor
	DockerDescriptor = core.DockerDescriptor
	K8sDescriptor    = core.K8sDescriptor
	SudoConfig       = core.SudoConfig
	AdapterKind      = core.AdapterKind
)

// Error type aliases (spec.md §7).
type (
	ValidationError      = core.ValidationError
	ConnectionError      = core.ConnectionError
	AuthenticationError  = core.AuthenticationError
	TimeoutError         = core.TimeoutError
	CancellationError    = core.CancellationError
	ExecutionError       = core.ExecutionError
	BufferOverflowError  = core.BufferOverflowError
	AdapterError         = core.AdapterError
	RetryError           = core.RetryError
	DisposedError        = core.DisposedError
	AggregateError       = core.AggregateError
)

const (
	AdapterLocal      = core.AdapterLocal
	AdapterSSH        = core.AdapterSSH
	AdapterDocker     = core.AdapterDocker
	AdapterKubernetes = core.AdapterKubernetes
)

// NewCommand is sugar for core.NewCommand.
func NewCommand(command string) Command { return core.NewCommand(command) }

// Engine is the top-level façade (spec.md §4.1). The zero value is not
// usable; construct with New.
type Engine struct {
	registry *adapter.Registry
	bus      *eventbus.Bus
	logger   *log.Logger
	stack    core.Stack

	mu          sync.Mutex
	memStop     chan struct{}
	memInterval time.Duration

	disposeOnce sync.Once
}

// Options configures New.
type Options struct {
	// SSHPoolPolicy overrides the SSH connection pool's policy; zero value
	// uses sshexec.DefaultPoolPolicy.
	SSHPoolPolicy sshexec.PoolPolicy
	// DockerBinary overrides the docker CLI name; defaults to "docker".
	DockerBinary string
	// KubectlBinary overrides the kubectl CLI name; defaults to "kubectl".
	KubectlBinary string
	// Logger overrides the engine's own logger; defaults to stderr.
	Logger *log.Logger
	// MemorySnapshotInterval, when non-zero, starts a background sampler
	// publishing eventbus.KindMemorySnapshot at this cadence (SPEC_FULL.md
	// §4's memory:snapshot sampler, spec.md §6).
	MemorySnapshotInterval time.Duration
}

// New constructs an Engine with every adapter factory registered, lazily
// instantiated on first use via the Registry (spec.md §4.2).
func New(opts Options) *Engine {
	bus := eventbus.New()
	logger := opts.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "xec"})
	}

	policy := opts.SSHPoolPolicy
	dockerBinary := opts.DockerBinary
	if dockerBinary == "" {
		dockerBinary = "docker"
	}
	kubectlBinary := opts.KubectlBinary
	if kubectlBinary == "" {
		kubectlBinary = "kubectl"
	}

	registry := adapter.NewRegistry()
	registry.Register(core.AdapterLocal, localexec.Factory)
	registry.Register(core.AdapterSSH, sshexec.Factory(policy, bus))
	registry.Register(core.AdapterDocker, dockerexec.Factory(dockerBinary))
	registry.Register(core.AdapterKubernetes, k8sexec.Factory(kubectlBinary, bus))

	e := &Engine{
		registry: registry,
		bus:      bus,
		logger:   logger,
	}

	if opts.MemorySnapshotInterval > 0 {
		e.startMemorySampler(opts.MemorySnapshotInterval)
	}

	return e
}

// NewFromConfig builds an Engine whose defaults (timeout, shell,
// throw_on_nonzero, encoding, memory snapshot cadence) come from a loaded
// config.Config (SPEC_FULL.md §2 configuration section).
func NewFromConfig(cfg *config.Config, opts Options) (*Engine, error) {
	opts.MemorySnapshotInterval = 0
	if cfg.Defaults.MemorySnapshotInterval != "" {
		d, err := config.ParseTimeout(cfg.Defaults.MemorySnapshotInterval)
		if err != nil {
			return nil, err
		}
		opts.MemorySnapshotInterval = d
	}

	e := New(opts)

	base := core.NewCommand("")
	base.ThrowOnNonzero = cfg.Defaults.ThrowOnNonzero
	base.Encoding = cfg.Defaults.Encoding
	base.Cwd = cfg.Defaults.Cwd
	base.Env = cfg.Defaults.Env
	if cfg.Defaults.Shell != "" {
		base.ShellPath = cfg.Defaults.Shell
	}
	if cfg.Defaults.TimeoutMs > 0 {
		base.TimeoutMs = cfg.Defaults.TimeoutMs
	}
	e.stack = e.stack.Push(overlayFromCommand(base))

	return e, nil
}

// overlayFromCommand lifts a handful of base Command fields into an Overlay
// so NewFromConfig can seed the engine's scope stack the same way with()
// does.
func overlayFromCommand(cmd core.Command) core.Overlay {
	o := core.Overlay{}
	if cmd.Cwd != "" {
		o.Cwd = &cmd.Cwd
	}
	if len(cmd.Env) > 0 {
		o.Env = cmd.Env
	}
	if cmd.TimeoutMs > 0 {
		o.TimeoutMs = &cmd.TimeoutMs
	}
	if cmd.ShellPath != "" {
		o.ShellPath = &cmd.ShellPath
	}
	o.ThrowOnNonzero = &cmd.ThrowOnNonzero
	if cmd.Encoding != "" {
		o.Encoding = &cmd.Encoding
	}
	return o
}

// Events returns the engine's shared event bus (spec.md §6), so callers can
// Subscribe to ssh:*/k8s:*/tunnel:*/memory:snapshot events.
func (e *Engine) Events() *eventbus.Bus { return e.bus }

// Run executes cmd, applying the engine's scope stack, and normalizes the
// outcome per spec.md §4.1.
func (e *Engine) Run(ctx context.Context, cmd Command) (*Result, error) {
	return e.run(ctx, cmd)
}

// Raw is like Run but sets RawSubstitution, marking cmd as built without
// shell-quoting of substituted values (spec.md §4.1 "raw(cmd)"). Neither Run
// nor Raw quotes anything; quoting happens when a Command is built with
// RunTemplate, and RawTemplate skips it.
func (e *Engine) Raw(ctx context.Context, cmd Command) (*Result, error) {
	cmd.RawSubstitution = true
	return e.run(ctx, cmd)
}

func (e *Engine) run(ctx context.Context, cmd Command) (*Result, error) {
	if e.registry.Disposed() {
		return nil, &core.DisposedError{Component: "Engine"}
	}

	resolved := e.stack.Resolve(cmd)

	a, err := e.registry.Get(resolved.Adapter.Kind)
	if err != nil {
		return nil, err
	}

	result, err := a.Execute(ctx, resolved)
	if err != nil {
		var connErr *core.ConnectionError
		if errors.As(err, &connErr) {
			e.bus.Publish(eventbus.Event{Kind: eventbus.KindAdapterDisconnected, Target: connErr.Target})
		}
	}
	return result, err
}

// With returns a clone of e whose every subsequent call merges overlay over
// the base (spec.md §4.1). The clone shares the adapter registry and event
// bus; it does not own a separate disposal lifecycle.
func (e *Engine) With(overlay Overlay) *Engine {
	clone := &Engine{
		registry: e.registry,
		bus:      e.bus,
		logger:   e.logger,
		stack:    e.stack.Push(overlay),
	}
	return clone
}

// Local returns an engine scoped to the local adapter.
func (e *Engine) Local() *Engine {
	kind := core.AdapterLocal
	return e.With(Overlay{AdapterKind: &kind})
}

// SSH returns an engine scoped to the SSH adapter bound to desc.
func (e *Engine) SSH(desc SSHDescriptor) *Engine {
	return e.With(Overlay{SSH: &desc})
}

// Docker returns an engine scoped to the Docker adapter bound to desc.
func (e *Engine) Docker(desc DockerDescriptor) *Engine {
	return e.With(Overlay{Docker: &desc})
}

// K8s returns an engine scoped to the Kubernetes adapter bound to desc.
func (e *Engine) K8s(desc K8sDescriptor) *Engine {
	return e.With(Overlay{K8s: &K8sOverlay{
		Pod:       &desc.Pod,
		Namespace: &desc.Namespace,
		Container: &desc.Container,
		ExecFlags: desc.ExecFlags,
		TTY:       &desc.TTY,
		Stdin:     &desc.Stdin,
	}})
}

// Adapter returns the live adapter instance for kind, constructing it on
// first use. Exposed so capability-specific helpers (Tunnel, PortForward,
// UploadFile, ...) can type-assert for the optional interfaces in
// internal/adapter without Engine growing one method per capability.
func (e *Engine) Adapter(kind core.AdapterKind) (adapter.Adapter, error) {
	return e.registry.Get(kind)
}

// Dispose disposes every constructed adapter exactly once (spec.md §4.1,
// §5 disposal discipline). Idempotent; per-adapter errors are logged and
// swallowed, never propagated.
func (e *Engine) Dispose() error {
	e.disposeOnce.Do(func() {
		e.mu.Lock()
		if e.memStop != nil {
			close(e.memStop)
			e.memStop = nil
		}
		e.mu.Unlock()

		for _, err := range e.registry.Dispose() {
			e.logger.Error("adapter disposal failed", "error", err)
		}
	})
	return nil
}

// startMemorySampler launches the best-effort runtime.MemStats publisher
// gated by Defaults.MemorySnapshotInterval (SPEC_FULL.md §4, spec.md §6
// "memory:snapshot").
func (e *Engine) startMemorySampler(interval time.Duration) {
	e.mu.Lock()
	if e.memStop != nil {
		e.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	e.memStop = stop
	e.memInterval = interval
	e.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var stats runtime.MemStats
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				runtime.ReadMemStats(&stats)
				e.bus.Publish(eventbus.Event{Kind: eventbus.KindMemorySnapshot})
			}
		}
	}()
}
