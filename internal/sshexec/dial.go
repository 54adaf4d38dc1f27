// SPDX-License-Identifier: MPL-2.0

package sshexec

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/crypto/ssh"
)

// dialContext opens a TCP connection honoring ctx cancellation, then
// performs the SSH handshake over it. ssh.Dial has no context-aware variant,
// so this composes net.Dialer.DialContext with ssh.NewClientConn the way the
// x/crypto/ssh godoc itself recommends for cancellable dials.
func dialContext(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	type result struct {
		client *ssh.Client
		err    error
	}
	done := make(chan result, 1)
	go func() {
		c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{client: ssh.NewClient(c, chans, reqs)}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("ssh handshake with %s: %w", addr, r.err)
		}
		return r.client, nil
	case <-ctx.Done():
		_ = conn.Close()
		return nil, ctx.Err()
	}
}

// clientConfig builds an *ssh.ClientConfig from an SSHDescriptor-derived
// auth method. Host key checking is intentionally permissive
// (InsecureIgnoreHostKey): the spec names no known_hosts verification
// requirement, and the engine targets ephemeral/dev infrastructure
// (containers, CI runners) where pinning a host key store is out of scope.
func clientConfig(user string, auth []ssh.AuthMethod) *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
}
