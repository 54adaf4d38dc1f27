// SPDX-License-Identifier: MPL-2.0

package k8sexec

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/xec-sh/xec-core/internal/adapter"
	"github.com/xec-sh/xec-core/internal/core"
	"github.com/xec-sh/xec-core/internal/eventbus"
	"github.com/xec-sh/xec-core/internal/issue"
	"github.com/xec-sh/xec-core/internal/streamutil"
)

// execCommandFunc mirrors dockerexec's injection point for testing.
type execCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

// Adapter is the Kubernetes transport: it shells out to kubectl.
type Adapter struct {
	binary      string
	execCommand execCommandFunc
	bus         *eventbus.Bus

	mu       sync.Mutex
	forwards map[string]*portForward
	logs     map[string]*logHandle
	disposed bool
}

// New creates a Kubernetes adapter. binary defaults to "kubectl" when empty.
func New(binary string, bus *eventbus.Bus) *Adapter {
	if binary == "" {
		binary = "kubectl"
	}
	return &Adapter{
		binary:      binary,
		execCommand: exec.CommandContext,
		bus:         bus,
		forwards:    make(map[string]*portForward),
		logs:        make(map[string]*logHandle),
	}
}

// Factory adapts New to adapter.Factory for registry wiring.
func Factory(binary string, bus *eventbus.Bus) adapter.Factory {
	return func() (adapter.Adapter, error) { return New(binary, bus), nil }
}

func (a *Adapter) Name() string { return "kubernetes" }

func (a *Adapter) Dispose() error {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return nil
	}
	a.disposed = true
	forwards := a.forwards
	logs := a.logs
	a.forwards = make(map[string]*portForward)
	a.logs = make(map[string]*logHandle)
	a.mu.Unlock()

	for _, f := range forwards {
		_ = f.Close()
	}
	for _, l := range logs {
		l.Stop()
	}
	return nil
}

// Execute implements adapter.Adapter.
func (a *Adapter) Execute(ctx context.Context, cmd core.Command) (*core.Result, error) {
	if a.disposedState() {
		return nil, &core.DisposedError{Component: "Kubernetes adapter"}
	}

	desc := cmd.Adapter.K8s
	if strings.TrimSpace(desc.Pod) == "" {
		return nil, &core.ValidationError{Reason: "Pod name or selector is required"}
	}

	execCtx := ctx
	var cancelTimeout context.CancelFunc
	if d := cmd.EffectiveTimeout(); d > 0 {
		execCtx, cancelTimeout = context.WithTimeout(ctx, d)
		defer cancelTimeout()
	}

	args := execArgs(desc, cmd)
	execCmd := a.execCommand(execCtx, a.binary, args...)
	// Bound the wait for output pipes that a killed process's children keep open.
	execCmd.WaitDelay = 100 * time.Millisecond

	if cmd.Stdin != nil {
		execCmd.Stdin = cmd.Stdin
	} else if cmd.StdinBytes != nil {
		execCmd.Stdin = bytes.NewReader(cmd.StdinBytes)
	}

	stdout := streamutil.NewBoundedBuffer(cmd.MaxBufferBytes)
	stderr := streamutil.NewBoundedBuffer(cmd.MaxBufferBytes)
	execCmd.Stdout = stdout
	execCmd.Stderr = stderr

	start := time.Now()
	runErr := execCmd.Run()
	duration := time.Since(start)

	if stdout.Overflowed() || stderr.Overflowed() {
		stream := "stdout"
		if stderr.Overflowed() {
			stream = "stderr"
		}
		return nil, &core.BufferOverflowError{Stream: stream, Limit: effectiveLimit(cmd.MaxBufferBytes)}
	}

	result := &core.Result{
		Stdout:     stdout.Bytes(),
		Stderr:     stderr.Bytes(),
		Command:    cmd.Command,
		Cwd:        cmd.Cwd,
		Host:       desc.Pod,
		DurationMs: duration.Milliseconds(),
	}

	if runErr != nil {
		if execCtx.Err() != nil && ctx.Err() == nil {
			return result, &core.TimeoutError{Phase: "exec"}
		}
		if ctx.Err() != nil {
			return result, &core.CancellationError{Partial: result}
		}

		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			if cmd.ThrowOnNonzero && result.ExitCode != 0 {
				return result, &core.ExecutionError{
					ExitCode: result.ExitCode,
					Stdout:   result.Stdout,
					Stderr:   result.Stderr,
				}
			}
			return result, nil
		}

		return result, issue.NewErrorContext().
			WithOperation("exec into pod").
			WithResource(desc.Pod).
			WithSuggestion("verify the pod is running (try: kubectl get pods)").
			Wrap(runErr)
	}

	return result, nil
}

func (a *Adapter) disposedState() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.disposed
}

// execArgs builds `exec -n NS [-c CONTAINER] [--tty] [--stdin] POD -- sh -c
// cmd` (or the resolved argv directly when cmd.Shell is false).
func execArgs(desc core.K8sDescriptor, cmd core.Command) []string {
	args := []string{"exec"}
	if desc.Namespace != "" {
		args = append(args, "-n", desc.Namespace)
	}
	if desc.Container != "" {
		args = append(args, "-c", desc.Container)
	}
	if desc.TTY {
		args = append(args, "--tty")
	}
	if desc.Stdin {
		args = append(args, "--stdin")
	}
	args = append(args, desc.ExecFlags...)
	args = append(args, desc.Pod, "--")

	if cmd.Shell {
		args = append(args, "sh", "-c", cmd.Command)
		args = append(args, cmd.Args...)
	} else {
		args = append(args, cmd.Command)
		args = append(args, cmd.Args...)
	}
	return args
}

func effectiveLimit(configured int64) int64 {
	if configured <= 0 {
		return streamutil.DefaultMaxBuffer
	}
	return configured
}
