// SPDX-License-Identifier: MPL-2.0

package k8sexec

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/xec-sh/xec-core/internal/adapter"
	"github.com/xec-sh/xec-core/internal/core"
)

func TestExecArgsIncludesNamespaceContainerAndFlags(t *testing.T) {
	t.Parallel()

	desc := core.K8sDescriptor{
		Pod:       "web-0",
		Namespace: "prod",
		Container: "app",
		ExecFlags: []string{"--quiet"},
		TTY:       true,
		Stdin:     true,
	}
	cmd := core.NewCommand("echo hi")

	args := execArgs(desc, cmd)
	joined := strings.Join(args, " ")

	for _, want := range []string{"-n prod", "-c app", "--tty", "--stdin", "--quiet", "web-0 --", "sh -c echo hi"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected %q in args %q", want, joined)
		}
	}
}

func TestExecArgsNonShellUsesArgvDirectly(t *testing.T) {
	t.Parallel()

	desc := core.K8sDescriptor{Pod: "web-0"}
	cmd := core.NewCommand("/bin/echo")
	cmd.Shell = false
	cmd.Args = []string{"hi"}

	args := execArgs(desc, cmd)
	joined := strings.Join(args, " ")
	if !strings.HasSuffix(joined, "web-0 -- /bin/echo hi") {
		t.Errorf("expected literal argv after --, got %q", joined)
	}
}

func TestExecuteRequiresPod(t *testing.T) {
	t.Parallel()

	a := New("kubectl", nil)
	_, err := a.Execute(context.Background(), core.NewCommand("echo hi"))
	if _, ok := err.(*core.ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
}

func TestExecuteAfterDisposeFails(t *testing.T) {
	t.Parallel()

	a := New("kubectl", nil)
	if err := a.Dispose(); err != nil {
		t.Fatalf("dispose: %v", err)
	}

	cmd := core.NewCommand("echo hi")
	cmd.Adapter.K8s = core.K8sDescriptor{Pod: "web-0"}
	_, err := a.Execute(context.Background(), cmd)
	if _, ok := err.(*core.DisposedError); !ok {
		t.Fatalf("expected DisposedError, got %T: %v", err, err)
	}
}

func fakeShellExecCommand(script string) execCommandFunc {
	return func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "/bin/sh", "-c", script)
	}
}

func TestExecuteCapturesStdoutAndExitCode(t *testing.T) {
	t.Parallel()

	a := New("kubectl", nil)
	a.execCommand = fakeShellExecCommand("printf hello")

	cmd := core.NewCommand("unused")
	cmd.Adapter.K8s = core.K8sDescriptor{Pod: "web-0"}

	result, err := a.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.StdoutString() != "hello" {
		t.Errorf("unexpected stdout: %q", result.StdoutString())
	}
}

func TestExecuteNonZeroExitReturnsExecutionError(t *testing.T) {
	t.Parallel()

	a := New("kubectl", nil)
	a.execCommand = fakeShellExecCommand("exit 4")

	cmd := core.NewCommand("unused")
	cmd.Adapter.K8s = core.K8sDescriptor{Pod: "web-0"}

	_, err := a.Execute(context.Background(), cmd)
	execErr, ok := err.(*core.ExecutionError)
	if !ok {
		t.Fatalf("expected ExecutionError, got %T: %v", err, err)
	}
	if execErr.ExitCode != 4 {
		t.Errorf("expected exit code 4, got %d", execErr.ExitCode)
	}
}

func TestExecuteHonorsTimeout(t *testing.T) {
	t.Parallel()

	a := New("kubectl", nil)
	a.execCommand = fakeShellExecCommand("sleep 1")

	cmd := core.NewCommand("unused")
	cmd.TimeoutMs = 10
	cmd.Adapter.K8s = core.K8sDescriptor{Pod: "web-0"}

	start := time.Now()
	_, err := a.Execute(context.Background(), cmd)
	elapsed := time.Since(start)

	if _, ok := err.(*core.TimeoutError); !ok {
		t.Fatalf("expected TimeoutError, got %T: %v", err, err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("expected timeout to fire quickly, took %v", elapsed)
	}
}

func TestCopyFilesToRemoteBuildsNamespacedDestination(t *testing.T) {
	t.Parallel()

	a := New("kubectl", nil)
	var captured []string
	a.execCommand = func(ctx context.Context, _ string, args ...string) *exec.Cmd {
		captured = append([]string(nil), args...)
		return exec.CommandContext(ctx, "/bin/sh", "-c", "true")
	}

	err := a.CopyFiles(context.Background(), "./local.txt", "web-0:/tmp/remote.txt", adapter.CopyOptions{
		Direction: adapter.CopyToRemote,
		Namespace: "prod",
		Container: "app",
	})
	if err != nil {
		t.Fatalf("copy: %v", err)
	}

	joined := strings.Join(captured, " ")
	if !strings.Contains(joined, "-c app") {
		t.Errorf("expected container flag, got %q", joined)
	}
	if !strings.Contains(joined, "prod/web-0:/tmp/remote.txt") {
		t.Errorf("expected namespace-qualified pod destination, got %q", joined)
	}
}

func TestCopyFilesRejectsUnknownDirection(t *testing.T) {
	t.Parallel()

	a := New("kubectl", nil)
	err := a.CopyFiles(context.Background(), "a", "b", adapter.CopyOptions{Direction: "sideways"})
	if err == nil {
		t.Fatal("expected an error for an unknown copy direction")
	}
}

func TestStreamLogsRejectsEmptyPod(t *testing.T) {
	t.Parallel()

	a := New("kubectl", nil)
	_, err := a.StreamLogs(context.Background(), "", func([]byte) {}, adapter.LogOptions{})
	if err == nil {
		t.Fatal("expected an error for an empty pod name")
	}
}

func TestPortForwardRejectsEmptyPod(t *testing.T) {
	t.Parallel()

	a := New("kubectl", nil)
	_, err := a.PortForward(context.Background(), adapter.PortForwardOptions{})
	if err == nil {
		t.Fatal("expected an error for an empty pod name")
	}
}

func TestPortForwardWaitsForReadinessLine(t *testing.T) {
	t.Parallel()

	a := New("kubectl", nil)
	a.execCommand = func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "/bin/sh", "-c", "printf 'Forwarding from 127.0.0.1:34567 -> 80\\n'; sleep 5")
	}

	tun, err := a.PortForward(context.Background(), adapter.PortForwardOptions{Pod: "web-0", RemotePort: 80})
	if err != nil {
		t.Fatalf("port-forward: %v", err)
	}
	defer tun.Close()

	if tun.LocalPort() != 34567 {
		t.Errorf("expected local port parsed from readiness line, got %d", tun.LocalPort())
	}
	if !tun.IsOpen() {
		t.Error("expected tunnel to report open")
	}
	if err := tun.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	if tun.IsOpen() {
		t.Error("expected tunnel to report closed after Close")
	}
}

func TestStreamLogsDeliversLinesAndStops(t *testing.T) {
	t.Parallel()

	a := New("kubectl", nil)
	a.execCommand = func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "/bin/sh", "-c", "printf 'one\\ntwo\\n'")
	}

	var lines []string
	done := make(chan struct{})
	handle, err := a.StreamLogs(context.Background(), "web-0", func(b []byte) {
		lines = append(lines, string(b))
		if len(lines) == 2 {
			close(done)
		}
	}, adapter.LogOptions{})
	if err != nil {
		t.Fatalf("stream logs: %v", err)
	}
	defer handle.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for both log lines")
	}
	if lines[0] != "one" || lines[1] != "two" {
		t.Errorf("unexpected lines: %v", lines)
	}
}
