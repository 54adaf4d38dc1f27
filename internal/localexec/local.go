// SPDX-License-Identifier: MPL-2.0

package localexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xec-sh/xec-core/internal/adapter"
	"github.com/xec-sh/xec-core/internal/core"
	"github.com/xec-sh/xec-core/internal/issue"
	"github.com/xec-sh/xec-core/internal/streamutil"
)

// killGrace is how long the process is given to exit after SIGTERM before
// SIGKILL is sent, per spec.md §4.3.
const killGrace = 5 * time.Second

// Adapter implements the local transport: it spawns commands using the host
// OS process API.
type Adapter struct {
	logger   *log.Logger
	disposed bool
}

// New creates a local adapter.
func New() *Adapter {
	return &Adapter{logger: log.NewWithOptions(os.Stderr, log.Options{Prefix: "xec-local"})}
}

// Factory adapts New to the adapter.Factory signature for registry wiring.
func Factory() (adapter.Adapter, error) { return New(), nil }

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return "local" }

// Dispose implements adapter.Adapter. The local adapter holds no persistent
// resources between calls, so this only flips the disposed flag.
func (a *Adapter) Dispose() error {
	a.disposed = true
	return nil
}

// Execute implements adapter.Adapter.
func (a *Adapter) Execute(ctx context.Context, cmd core.Command) (*core.Result, error) {
	if a.disposed {
		return nil, &core.DisposedError{Component: "local adapter"}
	}

	start := time.Now()

	execCtx := ctx
	var cancelTimeout context.CancelFunc
	if d := cmd.EffectiveTimeout(); d > 0 {
		execCtx, cancelTimeout = context.WithTimeout(ctx, d)
		defer cancelTimeout()
	}

	name, args, err := resolveShell(cmd)
	if err != nil {
		return nil, &core.ValidationError{Reason: err.Error()}
	}

	execCmd := exec.CommandContext(execCtx, name, args...)
	execCmd.Cancel = func() error {
		return execCmd.Process.Signal(syscall.SIGTERM)
	}
	execCmd.WaitDelay = killGrace

	if cmd.Cwd != "" {
		execCmd.Dir = cmd.Cwd
	}
	execCmd.Env = buildEnv(cmd)

	if cmd.Stdin != nil {
		execCmd.Stdin = cmd.Stdin
	} else if cmd.StdinBytes != nil {
		execCmd.Stdin = bytes.NewReader(cmd.StdinBytes)
	}

	stdout := streamutil.NewBoundedBuffer(cmd.MaxBufferBytes)
	stderr := streamutil.NewBoundedBuffer(cmd.MaxBufferBytes)
	execCmd.Stdout = stdout
	execCmd.Stderr = stderr

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
		Host:       "localhost",
		DurationMs: duration.Milliseconds(),
	}

	if runErr != nil {
		if execCtx.Err() != nil && ctx.Err() == nil {
			// Our own timeout fired, not the caller's context.
			return result, &core.TimeoutError{Phase: "exec"}
		}
		if ctx.Err() != nil {
			return result, &core.CancellationError{Partial: result}
		}

		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			if ws, ok := exitErr.Sys().(interface{ Signal() os.Signal }); ok {
				if sig := ws.Signal(); result.ExitCode < 0 {
					result.Signal = sig.String()
				}
			}
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

		return result, issue.NewErrorContext().
			WithOperation("execute local command").
			WithResource(cmd.Command).
			WithSuggestion("verify the command or shell is installed and on PATH").
			Wrap(runErr)
	}

	return result, nil
}

func effectiveLimit(configured int64) int64 {
	if configured <= 0 {
		return streamutil.DefaultMaxBuffer
	}
	return configured
}

// resolveShell builds the executable name and argument list for cmd,
// honoring cmd.Shell / cmd.ShellPath and appending cmd.Args either as
// positional shell arguments or as direct argv, mirroring the teacher's
// NativeRuntime shell-vs-direct split.
func resolveShell(cmd core.Command) (string, []string, error) {
	if !cmd.Shell {
		if cmd.Command == "" {
			return "", nil, fmt.Errorf("command is empty")
		}
		return cmd.Command, cmd.Args, nil
	}

	shell, err := resolveShellPath(cmd.ShellPath)
	if err != nil {
		return "", nil, err
	}

	args := shellFlag(shell)
	args = append(args, cmd.Command)
	args = appendPositional(shell, args, cmd.Args)
	return shell, args, nil
}

func resolveShellPath(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	switch runtime.GOOS {
	case "windows":
		if p, err := exec.LookPath("pwsh"); err == nil {
			return p, nil
		}
		if p, err := exec.LookPath("powershell"); err == nil {
			return p, nil
		}
		return exec.LookPath("cmd")
	default:
		if sh := os.Getenv("SHELL"); sh != "" {
			return sh, nil
		}
		if p, err := exec.LookPath("bash"); err == nil {
			return p, nil
		}
		if p, err := exec.LookPath("sh"); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("no shell found")
	}
}

func shellFlag(shell string) []string {
	switch baseName(shell) {
	case "cmd":
		return []string{"/C"}
	case "powershell", "pwsh":
		return []string{"-NoProfile", "-Command"}
	default:
		return []string{"-c"}
	}
}

func appendPositional(shell string, args, positional []string) []string {
	if len(positional) == 0 {
		return args
	}
	switch baseName(shell) {
	case "cmd":
		return args
	case "powershell", "pwsh":
		return append(args, positional...)
	default:
		args = append(args, "xec")
		return append(args, positional...)
	}
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return trimExe(path[i+1:])
		}
	}
	return trimExe(path)
}

func trimExe(name string) string {
	const suffix = ".exe"
	if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
		return name[:len(name)-len(suffix)]
	}
	return name
}

// buildEnv merges the host environment with cmd.Env. cmd.Env entries take
// precedence over an inherited value of the same key.
func buildEnv(cmd core.Command) []string {
	if cmd.Env == nil {
		return nil
	}
	env := os.Environ()
	for k, v := range cmd.Env {
		env = append(env, k+"="+v)
	}
	return env
}
