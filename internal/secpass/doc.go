// SPDX-License-Identifier: MPL-2.0

// Package secpass implements the secure-password handler (spec.md §4.10):
// masked in-memory storage, generated askpass scripts for sudo escalation,
// sanitized environments, and password masking/generation helpers.
package secpass
