// SPDX-License-Identifier: MPL-2.0

// Package dockerexec implements the Docker adapter (spec.md §4.6): it
// wraps `docker exec` the way the teacher's BaseCLIEngine wraps `docker
// run`/`docker build` — building an argument slice, then shelling out and
// normalizing the result.
package dockerexec
