// SPDX-License-Identifier: MPL-2.0

// Package localexec implements the local adapter (spec.md §4.3): it spawns
// commands via the host OS process API, honoring cwd, env, shell, timeout,
// stdin, and a bounded output buffer.
package localexec
