// SPDX-License-Identifier: MPL-2.0

package dockerexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/xec-sh/xec-core/internal/adapter"
	"github.com/xec-sh/xec-core/internal/core"
	"github.com/xec-sh/xec-core/internal/issue"
	"github.com/xec-sh/xec-core/internal/streamutil"
)

// execCommandFunc mirrors the teacher's ExecCommandFunc injection point for
// testing without spawning a real docker binary.
type execCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

// Adapter is the Docker transport: it shells out to the docker CLI binary.
type Adapter struct {
	binary      string
	execCommand execCommandFunc
	disposed    bool
}

// New creates a Docker adapter. binary defaults to "docker" when empty.
func New(binary string) *Adapter {
	if binary == "" {
		binary = "docker"
	}
	return &Adapter{binary: binary, execCommand: exec.CommandContext}
}

// Factory adapts New to adapter.Factory for registry wiring.
func Factory(binary string) adapter.Factory {
	return func() (adapter.Adapter, error) { return New(binary), nil }
}

func (a *Adapter) Name() string { return "docker" }

func (a *Adapter) Dispose() error {
	a.disposed = true
	return nil
}

// Execute implements adapter.Adapter.
func (a *Adapter) Execute(ctx context.Context, cmd core.Command) (*core.Result, error) {
	if a.disposed {
		return nil, &core.DisposedError{Component: "Docker adapter"}
	}

	desc := cmd.Adapter.Docker
	if strings.TrimSpace(desc.Container) == "" {
		return nil, &core.ValidationError{Reason: "Container name is required"}
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
		Host:       desc.Container,
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
			WithOperation("exec into container").
			WithResource(desc.Container).
			WithSuggestion("verify the container is running (try: docker ps)").
			Wrap(runErr)
	}

	return result, nil
}

// execArgs builds `exec [-i] [-u user] [-w cwd] [-e K=V ...] container sh -c
// cmd` (or the resolved argv directly when cmd.Shell is false). -i is added
// only when the command has stdin, -w only when Cwd is set, and -e flags are
// sorted by key; no --tty flag is ever emitted.
func execArgs(desc core.DockerDescriptor, cmd core.Command) []string {
	args := []string{"exec"}

	if cmd.Stdin != nil || cmd.StdinBytes != nil {
		args = append(args, "-i")
	}
	if desc.ContainerUser != "" {
		args = append(args, "-u", desc.ContainerUser)
	}
	if cmd.Cwd != "" {
		args = append(args, "-w", cmd.Cwd)
	}

	for _, k := range sortedKeys(cmd.Env) {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, cmd.Env[k]))
	}

	args = append(args, desc.Container)

	if cmd.Shell {
		args = append(args, "sh", "-c", cmd.Command)
		args = append(args, cmd.Args...)
	} else {
		args = append(args, cmd.Command)
		args = append(args, cmd.Args...)
	}
	return args
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func effectiveLimit(configured int64) int64 {
	if configured <= 0 {
		return streamutil.DefaultMaxBuffer
	}
	return configured
}
