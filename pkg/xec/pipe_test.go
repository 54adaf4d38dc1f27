// SPDX-License-Identifier: MPL-2.0

package xec

import (
	"context"
	"strings"
	"testing"
)

func TestPipeChainsStdoutToStdin(t *testing.T) {
	t.Parallel()

	e := New(Options{})
	defer e.Dispose()

	pr, err := e.Pipe(context.Background(), NewCommand("echo hello world"), NewCommand("tr a-z A-Z"))
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	if got := strings.TrimSpace(pr.Second.StdoutString()); got != "HELLO WORLD" {
		t.Errorf("expected %q, got %q", "HELLO WORLD", got)
	}
	if !pr.First.Success() {
		t.Errorf("expected first stage to succeed, exit code %d", pr.First.ExitCode)
	}
}

func TestPipeSecondSeesPartialOutputOnFirstFailure(t *testing.T) {
	t.Parallel()

	e := New(Options{})
	defer e.Dispose()

	first := NewCommand("echo partial; exit 1")
	first.ThrowOnNonzero = false
	pr, err := e.Pipe(context.Background(), first, NewCommand("cat"))
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	if got := strings.TrimSpace(pr.Second.StdoutString()); got != "partial" {
		t.Errorf("expected second stage to see %q, got %q", "partial", got)
	}
}
