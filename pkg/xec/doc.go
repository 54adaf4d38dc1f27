// SPDX-License-Identifier: MPL-2.0

// Package xec is the universal command execution engine: a single façade
// (Engine) that runs shell commands and file operations against the local
// machine, remote hosts over SSH, Docker containers, and Kubernetes pods
// behind one uniform Command/Result contract.
//
// Engine.With returns a scoped clone whose overlay merges over every call
// made through it; Within runs a function under a dynamically scoped
// overlay using context.Context rather than mutable global state (read back
// by Engine.RunScoped). Parallel helpers operate over slices of Command;
// Engine.Retry re-runs a single Command.
package xec
