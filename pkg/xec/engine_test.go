// SPDX-License-Identifier: MPL-2.0

package xec

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestEngineRunLocalEcho(t *testing.T) {
	t.Parallel()

	e := New(Options{})
	defer e.Dispose()

	cmd := NewCommand("echo hello")
	result, err := e.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.TrimSpace(result.StdoutString()); got != "hello" {
		t.Errorf("expected stdout %q, got %q", "hello", got)
	}
	if !result.Success() {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
}

func TestEngineRunExecutionError(t *testing.T) {
	t.Parallel()

	e := New(Options{})
	defer e.Dispose()

	cmd := NewCommand("exit 3")
	_, err := e.Run(context.Background(), cmd)
	execErr, ok := err.(*ExecutionError)
	if !ok {
		t.Fatalf("expected *ExecutionError, got %T: %v", err, err)
	}
	if execErr.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", execErr.ExitCode)
	}
}

func TestEngineWithOverlayAppliesCwd(t *testing.T) {
	t.Parallel()

	e := New(Options{})
	defer e.Dispose()

	cwd := t.TempDir()
	scoped := e.With(Overlay{Cwd: &cwd})

	result, err := scoped.Run(context.Background(), NewCommand("pwd"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.TrimSpace(result.StdoutString()); got != cwd {
		t.Errorf("expected pwd %q, got %q", cwd, got)
	}
}

func TestEngineDisposeIsIdempotent(t *testing.T) {
	t.Parallel()

	e := New(Options{})
	if err := e.Dispose(); err != nil {
		t.Fatalf("first Dispose: %v", err)
	}
	if err := e.Dispose(); err != nil {
		t.Fatalf("second Dispose: %v", err)
	}

	_, err := e.Run(context.Background(), NewCommand("echo hi"))
	if _, ok := err.(*DisposedError); !ok {
		t.Fatalf("expected DisposedError after dispose, got %T: %v", err, err)
	}
}

func TestEngineRunRespectsTimeout(t *testing.T) {
	t.Parallel()

	e := New(Options{})
	defer e.Dispose()

	cmd := NewCommand("sleep 5")
	cmd.TimeoutMs = int64(50 * time.Millisecond / time.Millisecond)
	_, err := e.Run(context.Background(), cmd)
	if _, ok := err.(*TimeoutError); !ok {
		t.Fatalf("expected TimeoutError, got %T: %v", err, err)
	}
}
