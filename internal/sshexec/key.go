// SPDX-License-Identifier: MPL-2.0

package sshexec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/xec-sh/xec-core/internal/core"
)

// ConnectionKey identifies a poolable SSH connection: two Commands that
// resolve to the same key share a PooledConnection (spec.md §3).
type ConnectionKey struct {
	User        string
	Host        string
	Port        int
	AuthFinger  string
}

// String renders the key for logging and map-debugging.
func (k ConnectionKey) String() string {
	return fmt.Sprintf("ssh://%s@%s:%d#%s", k.User, k.Host, k.Port, k.AuthFinger[:minInt(8, len(k.AuthFinger))])
}

// KeyFor derives the ConnectionKey for an SSHDescriptor, fingerprinting
// whichever auth material is present so distinct credentials never share a
// connection even when host/user/port match.
func KeyFor(d core.SSHDescriptor) ConnectionKey {
	port := d.Port
	if port == 0 {
		port = 22
	}
	return ConnectionKey{
		User:       d.User,
		Host:       d.Host,
		Port:       port,
		AuthFinger: authFingerprint(d),
	}
}

func authFingerprint(d core.SSHDescriptor) string {
	h := sha256.New()
	switch {
	case d.Agent:
		h.Write([]byte("agent"))
	case len(d.PrivateKey) > 0:
		h.Write([]byte("key:"))
		h.Write(d.PrivateKey)
	case d.Password != "":
		h.Write([]byte("password:"))
		h.Write([]byte(d.Password))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
