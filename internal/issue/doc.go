// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable, user-facing error wrapping shared by
// every adapter and the engine façade: an operation, an optional resource,
// a list of fix suggestions, and the underlying cause.
package issue
