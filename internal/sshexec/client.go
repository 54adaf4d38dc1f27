// SPDX-License-Identifier: MPL-2.0

package sshexec

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/xec-sh/xec-core/internal/adapter"
	"github.com/xec-sh/xec-core/internal/core"
	"github.com/xec-sh/xec-core/internal/eventbus"
	"github.com/xec-sh/xec-core/internal/issue"
	"github.com/xec-sh/xec-core/internal/secpass"
	"github.com/xec-sh/xec-core/internal/streamutil"
)

// Adapter is the SSH transport (spec.md §4.4). One instance serves every
// SSH target; per-target identity travels on each Command's
// AdapterDescriptor.SSH and the pool multiplexes connections by
// ConnectionKey.
type Adapter struct {
	pool    *Pool
	bus     *eventbus.Bus
	secpass *secpass.Handler
	logger  *log.Logger

	mu              sync.Mutex
	tunnels         map[string]*tunnel
	boundDescriptor core.SSHDescriptor
	disposed        bool
}

var (
	_ adapter.Adapter      = (*Adapter)(nil)
	_ adapter.Tunneler     = (*Adapter)(nil)
	_ adapter.FileUploader = (*Adapter)(nil)
	_ adapter.FileDownloader = (*Adapter)(nil)
)

// New creates an SSH adapter. bus may be nil to disable event emission.
func New(policy PoolPolicy, bus *eventbus.Bus) *Adapter {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "xec-ssh"})
	return &Adapter{
		pool:    NewPool(policy, dialContext, bus, logger),
		bus:     bus,
		secpass: secpass.New(""),
		logger:  logger,
		tunnels: make(map[string]*tunnel),
	}
}

// Factory adapts New to adapter.Factory for registry wiring.
func Factory(policy PoolPolicy, bus *eventbus.Bus) adapter.Factory {
	return func() (adapter.Adapter, error) { return New(policy, bus), nil }
}

func (a *Adapter) Name() string { return "ssh" }

func (a *Adapter) Dispose() error {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return nil
	}
	a.disposed = true
	tunnels := a.tunnels
	a.tunnels = make(map[string]*tunnel)
	a.mu.Unlock()

	for _, t := range tunnels {
		_ = t.Close()
	}
	a.secpass.Cleanup()

	if errs := a.pool.Dispose(); len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Execute implements adapter.Adapter.
func (a *Adapter) Execute(ctx context.Context, cmd core.Command) (*core.Result, error) {
	if a.disposedState() {
		return nil, &core.DisposedError{Component: "SSH adapter"}
	}

	desc := cmd.Adapter.SSH
	if err := validateDescriptor(desc); err != nil {
		return nil, err
	}

	auth, err := authMethods(desc)
	if err != nil {
		return nil, err
	}

	key := KeyFor(desc)
	addr := net.JoinHostPort(desc.Host, portOrDefault(desc.Port))
	conn, err := a.pool.Checkout(ctx, key, clientConfig(desc.User, auth), addr)
	if err != nil {
		return nil, err
	}

	execCtx := ctx
	if d := cmd.EffectiveTimeout(); d > 0 {
		var cancelTimeout context.CancelFunc
		execCtx, cancelTimeout = context.WithTimeout(ctx, d)
		defer cancelTimeout()
	}

	result, execErr := a.runOnConnection(ctx, execCtx, conn, cmd, desc)
	if execErr != nil && isConnectionFailure(execErr) {
		a.pool.ReportError(conn)
	} else {
		a.pool.Release(conn)
	}
	return result, execErr
}

func (a *Adapter) disposedState() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.disposed
}

// runOnConnection runs cmd over conn's session. ctx is the caller's original
// context, used only to distinguish caller cancellation from our own
// derived timeout; execCtx (ctx, optionally wrapped in context.WithTimeout
// per cmd.EffectiveTimeout()) is what's actually waited on.
func (a *Adapter) runOnConnection(ctx, execCtx context.Context, conn *pooledConnection, cmd core.Command, desc core.SSHDescriptor) (*core.Result, error) {
	session, err := conn.client.NewSession()
	if err != nil {
		return nil, &core.ConnectionError{Target: desc.Host, Cause: err}
	}
	defer session.Close()

	stdout := streamutil.NewBoundedBuffer(cmd.MaxBufferBytes)
	stderr := streamutil.NewBoundedBuffer(cmd.MaxBufferBytes)
	session.Stdout = stdout
	session.Stderr = stderr

	line, env, cleanup, err := a.buildCommandLine(cmd, desc)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	for k, v := range env {
		_ = session.Setenv(k, v)
	}

	if err := wireStdin(session, cmd, desc); err != nil {
		return nil, err
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(line) }()

	var runErr error
	select {
	case runErr = <-done:
	case <-execCtx.Done():
		_ = session.Signal(ssh.SIGTERM)
		partial := &core.Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
		if execCtx.Err() != nil && ctx.Err() == nil {
			// Our own derived timeout fired, not the caller's context.
			return partial, &core.TimeoutError{Phase: "exec"}
		}
		return nil, &core.CancellationError{Partial: partial}
	}

	if stdout.Overflowed() || stderr.Overflowed() {
		stream := "stdout"
		if stderr.Overflowed() {
			stream = "stderr"
		}
		return nil, &core.BufferOverflowError{Stream: stream, Limit: effectiveLimit(cmd.MaxBufferBytes)}
	}

	result := &core.Result{
		Stdout:  stdout.Bytes(),
		Stderr:  stderr.Bytes(),
		Command: cmd.Command,
		Cwd:     cmd.Cwd,
		Host:    desc.Host,
	}

	if runErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			result.Signal = exitErr.Signal()
			if cmd.ThrowOnNonzero && result.ExitCode != 0 {
				return result, &core.ExecutionError{
					ExitCode: result.ExitCode,
					Signal:   result.Signal,
					Stdout:   result.Stdout,
					Stderr:   result.Stderr,
				}
			}
			return result, nil
		}
		return result, &core.ConnectionError{Target: desc.Host, Cause: runErr}
	}

	return result, nil
}

// buildCommandLine renders the shell line sudo escalation requires, if any,
// and returns the additional environment and a cleanup to scrub any
// generated askpass script.
func (a *Adapter) buildCommandLine(cmd core.Command, desc core.SSHDescriptor) (string, map[string]string, func(), error) {
	noop := func() {}
	base := cmd.Command

	if !desc.Sudo.Enabled {
		return base, nil, noop, nil
	}

	switch desc.Sudo.Method {
	case "stdin":
		return "sudo -S -p '' " + base, nil, noop, nil

	case "askpass", "":
		path, err := a.secpass.CreateAskpassScript(desc.Sudo.Password)
		if err != nil {
			return "", nil, noop, issue.NewErrorContext().
				WithOperation("prepare sudo askpass").
				WithResource(desc.Host).
				Wrap(err)
		}
		env, err := a.secpass.CreateSecureEnv(path, nil)
		if err != nil {
			return "", nil, noop, err
		}
		cleanup := func() { a.secpass.Cleanup() }
		return "sudo -A " + base, env, cleanup, nil

	default:
		return "", nil, noop, &core.ValidationError{Reason: fmt.Sprintf("unknown sudo method %q", desc.Sudo.Method)}
	}
}

func wireStdin(session *ssh.Session, cmd core.Command, desc core.SSHDescriptor) error {
	if desc.Sudo.Enabled && desc.Sudo.Method == "stdin" {
		w, err := session.StdinPipe()
		if err != nil {
			return fmt.Errorf("open stdin for sudo prompt: %w", err)
		}
		go func() {
			fmt.Fprintf(w, "%s\n", desc.Sudo.Password)
			if cmd.StdinBytes != nil {
				_, _ = w.Write(cmd.StdinBytes)
			}
			w.Close()
		}()
		return nil
	}

	if cmd.Stdin != nil {
		session.Stdin = cmd.Stdin
	} else if cmd.StdinBytes != nil {
		session.Stdin = strings.NewReader(string(cmd.StdinBytes))
	}
	return nil
}

func validateDescriptor(d core.SSHDescriptor) error {
	if strings.TrimSpace(d.Host) == "" {
		return &core.ValidationError{Reason: "host is required"}
	}
	if strings.TrimSpace(d.User) == "" {
		return &core.ValidationError{Reason: "username is required"}
	}
	if d.Port != 0 && (d.Port < 1 || d.Port > 65535) {
		return &core.ValidationError{Reason: "port must be in range 1-65535"}
	}
	count := 0
	if d.Password != "" {
		count++
	}
	if len(d.PrivateKey) > 0 {
		count++
	}
	if d.Agent {
		count++
	}
	if count != 1 {
		return &core.ValidationError{Reason: "exactly one of password, private_key, or agent must be provided"}
	}
	return nil
}

func authMethods(d core.SSHDescriptor) ([]ssh.AuthMethod, error) {
	switch {
	case d.Password != "":
		return []ssh.AuthMethod{ssh.Password(d.Password)}, nil

	case len(d.PrivateKey) > 0:
		var signer ssh.Signer
		var err error
		if d.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(d.PrivateKey, []byte(d.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(d.PrivateKey)
		}
		if err != nil {
			return nil, &core.AuthenticationError{Target: d.Host, Cause: err}
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil

	case d.Agent:
		sock := os.Getenv("SSH_AUTH_SOCK")
		if sock == "" {
			return nil, &core.AuthenticationError{Target: d.Host, Cause: fmt.Errorf("SSH_AUTH_SOCK is not set")}
		}
		conn, err := net.Dial("unix", sock)
		if err != nil {
			return nil, &core.AuthenticationError{Target: d.Host, Cause: err}
		}
		ag := agent.NewClient(conn)
		return []ssh.AuthMethod{ssh.PublicKeysCallback(ag.Signers)}, nil

	default:
		return nil, &core.ValidationError{Reason: "no authentication method provided"}
	}
}

func portOrDefault(port int) string {
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%d", port)
}

func effectiveLimit(configured int64) int64 {
	if configured <= 0 {
		return streamutil.DefaultMaxBuffer
	}
	return configured
}

func isConnectionFailure(err error) bool {
	var connErr *core.ConnectionError
	return errors.As(err, &connErr)
}

// Tunnel implements adapter.Tunneler. If no live connection exists for
// opts.Target, it fails with a ValidationError naming the spec's literal
// message so callers can match on it.
func (a *Adapter) Tunnel(ctx context.Context, opts adapter.TunnelOptions) (adapter.Tunnel, error) {
	desc := opts.Target
	if err := validateDescriptor(desc); err != nil {
		return nil, err
	}
	auth, err := authMethods(desc)
	if err != nil {
		return nil, err
	}

	key := KeyFor(desc)
	addr := net.JoinHostPort(desc.Host, portOrDefault(desc.Port))
	conn, err := a.pool.Checkout(ctx, key, clientConfig(desc.User, auth), addr)
	if err != nil {
		return nil, &core.ValidationError{Reason: "No SSH connection available"}
	}

	t, err := openTunnel(ctx, conn, opts, a.bus, a.pool.Release)
	if err != nil {
		a.pool.Release(conn)
		return nil, err
	}

	trackKey := tunnelTrackingKey(t.LocalPort(), t.RemoteHost(), t.RemotePort())
	a.mu.Lock()
	a.tunnels[trackKey] = t
	a.mu.Unlock()

	t.untrack = func() {
		a.mu.Lock()
		delete(a.tunnels, trackKey)
		a.mu.Unlock()
	}

	return t, nil
}

// ListTunnels implements adapter.Tunneler.
func (a *Adapter) ListTunnels() []adapter.Tunnel {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]adapter.Tunnel, 0, len(a.tunnels))
	for _, t := range a.tunnels {
		out = append(out, t)
	}
	return out
}
