// SPDX-License-Identifier: MPL-2.0

// Package core holds the canonical data model shared by the public xec
// façade and every internal adapter package: Command, Result, the tagged
// AdapterDescriptor variant, the Overlay merge rules behind with()/within(),
// and the error kinds adapters and the engine return.
//
// It exists as an internal package (rather than living in pkg/xec directly)
// so adapter packages can depend on the data model without importing the
// façade package that in turn depends on them — see internal/adapter for the
// registry that ties the two together.
package core
