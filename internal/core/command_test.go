// SPDX-License-Identifier: MPL-2.0

package core

import "testing"

func TestNewCommandDefaults(t *testing.T) {
	t.Parallel()

	cmd := NewCommand("echo hi")
	if !cmd.Shell {
		t.Error("expected Shell to default true")
	}
	if !cmd.ThrowOnNonzero {
		t.Error("expected ThrowOnNonzero to default true")
	}
	if cmd.Adapter.Kind != AdapterLocal {
		t.Errorf("expected local adapter by default, got %v", cmd.Adapter.Kind)
	}
}

func TestCommandCloneIsIndependent(t *testing.T) {
	t.Parallel()

	cmd := NewCommand("echo hi")
	cmd.Args = []string{"a"}
	cmd.Env = map[string]string{"X": "1"}

	clone := cmd.Clone()
	clone.Args[0] = "b"
	clone.Env["X"] = "2"

	if cmd.Args[0] != "a" {
		t.Errorf("expected original Args unaffected, got %q", cmd.Args[0])
	}
	if cmd.Env["X"] != "1" {
		t.Errorf("expected original Env unaffected, got %q", cmd.Env["X"])
	}
}

func TestEffectiveTimeout(t *testing.T) {
	t.Parallel()

	cmd := NewCommand("echo hi")
	if d := cmd.EffectiveTimeout(); d != 0 {
		t.Errorf("expected zero timeout by default, got %v", d)
	}

	cmd.TimeoutMs = 1500
	if d := cmd.EffectiveTimeout(); d.Milliseconds() != 1500 {
		t.Errorf("expected 1500ms, got %v", d)
	}
}

func TestResultHelpers(t *testing.T) {
	t.Parallel()

	r := &Result{Stdout: []byte("out"), Stderr: []byte("err"), ExitCode: 0}
	if r.StdoutString() != "out" || r.StderrString() != "err" {
		t.Errorf("unexpected string conversions: %q %q", r.StdoutString(), r.StderrString())
	}
	if !r.Success() {
		t.Error("expected Success true for exit code 0")
	}

	r.ExitCode = 1
	if r.Success() {
		t.Error("expected Success false for non-zero exit code")
	}
}
