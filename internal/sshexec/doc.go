// SPDX-License-Identifier: MPL-2.0

// Package sshexec implements the SSH adapter (spec.md §4.4): command
// execution over an exec channel, sudo escalation via askpass or stdin,
// SFTP upload/download, and direct-tcpip tunnels, all backed by a pooled
// connection manager (pool.go).
package sshexec
