// SPDX-License-Identifier: MPL-2.0

// Package k8sexec implements the Kubernetes adapter (spec.md §4.7):
// kubectl exec, port-forward, log streaming, and kubectl cp, each wrapping
// the kubectl CLI the way the Docker adapter wraps the docker CLI.
package k8sexec
