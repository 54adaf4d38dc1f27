// SPDX-License-Identifier: MPL-2.0

package core

import "maps"

// K8sOverlay mirrors K8sDescriptor but distinguishes "unset" from zero value
// for every field, and treats ExecFlags as concatenation rather than
// replacement (spec.md §4.1: "arrays (exec_flags) concatenate").
type K8sOverlay struct {
	Pod       *string
	Namespace *string
	Container *string
	ExecFlags []string
	TTY       *bool
	Stdin     *bool
}

// Overlay is a partial option set pushed by with()/within(). Every field is
// optional (nil/zero-length means "inherit from the layer below"). Overlays
// compose in push order: scalars are last-writer-wins, the Env map merges
// key-wise, and K8s ExecFlags concatenate.
type Overlay struct {
	Cwd            *string
	Env            map[string]string
	TimeoutMs      *int64
	Shell          *bool
	ShellPath      *string
	ThrowOnNonzero *bool
	Encoding       *string
	MaxBufferBytes *int64

	AdapterKind *AdapterKind
	SSH         *SSHDescriptor
	Docker      *DockerDescriptor
	K8s         *K8sOverlay
}

// Stack is an ordered list of Overlays, outermost (base) first. A child
// scope appends to the stack rather than mutating a parent's overlay, so a
// parent Engine is unaffected by overlays pushed by its with()-derived
// children.
type Stack []Overlay

// Push returns a new Stack with overlay appended, leaving the receiver
// unmodified.
func (s Stack) Push(o Overlay) Stack {
	next := make(Stack, len(s), len(s)+1)
	copy(next, s)
	return append(next, o)
}

// Resolve applies every overlay in the stack, in order, over base and
// returns the effective Command.
func (s Stack) Resolve(base Command) Command {
	cmd := base.Clone()
	for _, o := range s {
		cmd = o.apply(cmd)
	}
	return cmd
}

func (o Overlay) apply(cmd Command) Command {
	if o.Cwd != nil {
		cmd.Cwd = *o.Cwd
	}
	if len(o.Env) > 0 {
		if cmd.Env == nil {
			cmd.Env = make(map[string]string, len(o.Env))
		}
		maps.Copy(cmd.Env, o.Env)
	}
	if o.TimeoutMs != nil {
		cmd.TimeoutMs = *o.TimeoutMs
	}
	if o.Shell != nil {
		cmd.Shell = *o.Shell
	}
	if o.ShellPath != nil {
		cmd.ShellPath = *o.ShellPath
	}
	if o.ThrowOnNonzero != nil {
		cmd.ThrowOnNonzero = *o.ThrowOnNonzero
	}
	if o.Encoding != nil {
		cmd.Encoding = *o.Encoding
	}
	if o.MaxBufferBytes != nil {
		cmd.MaxBufferBytes = *o.MaxBufferBytes
	}
	if o.AdapterKind != nil {
		cmd.Adapter.Kind = *o.AdapterKind
	}
	if o.SSH != nil {
		cmd.Adapter.Kind = AdapterSSH
		cmd.Adapter.SSH = *o.SSH
	}
	if o.Docker != nil {
		cmd.Adapter.Kind = AdapterDocker
		cmd.Adapter.Docker = *o.Docker
	}
	if o.K8s != nil {
		cmd.Adapter.Kind = AdapterKubernetes
		applyK8sOverlay(o.K8s, &cmd.Adapter.K8s)
	}
	return cmd
}

func applyK8sOverlay(o *K8sOverlay, k *K8sDescriptor) {
	if o.Pod != nil {
		k.Pod = *o.Pod
	}
	if o.Namespace != nil {
		k.Namespace = *o.Namespace
	}
	if o.Container != nil {
		k.Container = *o.Container
	}
	if len(o.ExecFlags) > 0 {
		k.ExecFlags = append(append([]string(nil), k.ExecFlags...), o.ExecFlags...)
	}
	if o.TTY != nil {
		k.TTY = *o.TTY
	}
	if o.Stdin != nil {
		k.Stdin = *o.Stdin
	}
}
