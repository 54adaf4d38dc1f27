// SPDX-License-Identifier: MPL-2.0

package core

import (
	"io"
	"maps"
	"time"
)

// AdapterKind tags which transport a Command targets.
type AdapterKind string

const (
	AdapterLocal      AdapterKind = "local"
	AdapterSSH        AdapterKind = "ssh"
	AdapterDocker     AdapterKind = "docker"
	AdapterKubernetes AdapterKind = "kubernetes"
)

type (
	// SSHDescriptor selects an SSH target and its auth.
	SSHDescriptor struct {
		Host string
		Port int // defaults to 22 when zero
		User string

		// Exactly one of Password, PrivateKey, or Agent should be set.
		Password   string
		PrivateKey []byte // PEM-encoded
		Passphrase string // for PrivateKey, optional
		Agent      bool   // use SSH_AUTH_SOCK agent forwarding

		// Sudo controls privilege escalation for this command.
		Sudo SudoConfig
	}

	// SudoConfig describes how sudo should be invoked, if at all.
	SudoConfig struct {
		Enabled  bool
		Method   string // "askpass" | "stdin"
		Password string
	}

	// DockerDescriptor selects a running container target.
	DockerDescriptor struct {
		Container     string
		ContainerUser string
	}

	// K8sDescriptor selects a pod/container target.
	K8sDescriptor struct {
		Pod       string
		Namespace string
		Container string
		ExecFlags []string
		TTY       bool
		Stdin     bool
	}

	// AdapterDescriptor is a tagged variant over the four transport kinds.
	// Only the descriptor field matching Kind is read; the others are ignored.
	AdapterDescriptor struct {
		Kind   AdapterKind
		Local  struct{}
		SSH    SSHDescriptor
		Docker DockerDescriptor
		K8s    K8sDescriptor
	}

	// Command is an immutable request record. Construct via NewCommand or by
	// composing with an Engine's with()-scoped overlay; do not mutate a
	// Command shared across goroutines.
	Command struct {
		Command         string
		Args            []string
		Stdin           io.Reader
		StdinBytes      []byte
		Cwd             string
		Env             map[string]string
		TimeoutMs       int64
		Shell           bool
		ShellPath       string
		ThrowOnNonzero  bool
		Encoding        string
		Adapter         AdapterDescriptor
		MaxBufferBytes  int64
		RawSubstitution bool // when true, Engine.raw skipped shell-quoting
	}

	// Result is the normalized outcome of executing a Command.
	Result struct {
		Stdout     []byte
		Stderr     []byte
		ExitCode   int
		Signal     string
		DurationMs int64
		Command    string
		Cwd        string
		Host       string
	}
)

// StdoutString returns Result.Stdout decoded as a string.
func (r *Result) StdoutString() string { return string(r.Stdout) }

// StderrString returns Result.Stderr decoded as a string.
func (r *Result) StderrString() string { return string(r.Stderr) }

// Success reports whether the command completed with exit code zero.
func (r *Result) Success() bool { return r.ExitCode == 0 }

// NewCommand creates a Command with the given shell command string and
// sensible defaults (ThrowOnNonzero true, Shell true, local adapter).
func NewCommand(command string) Command {
	return Command{
		Command:        command,
		Shell:          true,
		ThrowOnNonzero: true,
		Adapter:        AdapterDescriptor{Kind: AdapterLocal},
	}
}

// Clone returns a deep-enough copy of c so overlay merging never mutates the
// caller's Command.
func (c Command) Clone() Command {
	out := c
	if c.Args != nil {
		out.Args = append([]string(nil), c.Args...)
	}
	if c.Env != nil {
		out.Env = maps.Clone(c.Env)
	}
	return out
}

// EffectiveTimeout returns the configured timeout, or zero meaning no timeout.
func (c Command) EffectiveTimeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}
