// SPDX-License-Identifier: MPL-2.0

package sshexec

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"golang.org/x/crypto/ssh"
)

var errStubDialFailure = errors.New("stub dial failure")

// newFakeSSHClient hands back a genuine *ssh.Client backed by an in-memory
// net.Pipe and an in-process server goroutine — no real network I/O, per
// Dialer's doc comment. The server accepts no channels or requests; pool
// tests only need a live client handle to exercise checkout/release/eviction
// bookkeeping, not actual command execution (that's client_test.go's job,
// exercised against the adapter instead).
func newFakeSSHClient(t *testing.T) *ssh.Client {
	t.Helper()

	serverConn, clientConn := net.Pipe()

	signer, err := ssh.NewSignerFromKey(testHostKey(t))
	if err != nil {
		t.Fatalf("build host key signer: %v", err)
	}
	serverConfig := &ssh.ServerConfig{NoClientAuth: true}
	serverConfig.AddHostKey(signer)

	serverReady := make(chan struct{})
	go func() {
		sconn, chans, reqs, err := ssh.NewServerConn(serverConn, serverConfig)
		close(serverReady)
		if err != nil {
			return
		}
		defer sconn.Close()
		go ssh.DiscardRequests(reqs)
		for newChan := range chans {
			_ = newChan.Reject(ssh.Prohibited, "fake test server accepts no channels")
		}
	}()

	clientConfig := &ssh.ClientConfig{
		User:            "test",
		Auth:            []ssh.AuthMethod{ssh.Password("")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	c, chans, reqs, err := ssh.NewClientConn(clientConn, "pipe", clientConfig)
	if err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	<-serverReady

	return ssh.NewClient(c, chans, reqs)
}

// newImmediatelyClosingFakeSSHClient completes a real handshake, then closes
// the server side right away, so any later use of the returned client's
// transport (e.g. a keep-alive SendRequest) fails the way a genuinely dead
// connection would.
func newImmediatelyClosingFakeSSHClient(t *testing.T) *ssh.Client {
	t.Helper()

	serverConn, clientConn := net.Pipe()

	signer, err := ssh.NewSignerFromKey(testHostKey(t))
	if err != nil {
		t.Fatalf("build host key signer: %v", err)
	}
	serverConfig := &ssh.ServerConfig{NoClientAuth: true}
	serverConfig.AddHostKey(signer)

	go func() {
		sconn, _, _, err := ssh.NewServerConn(serverConn, serverConfig)
		if err != nil {
			return
		}
		sconn.Close()
	}()

	clientConfig := &ssh.ClientConfig{
		User:            "test",
		Auth:            []ssh.AuthMethod{ssh.Password("")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	c, chans, reqs, err := ssh.NewClientConn(clientConn, "pipe", clientConfig)
	if err != nil {
		t.Fatalf("client handshake: %v", err)
	}

	return ssh.NewClient(c, chans, reqs)
}

func testHostKey(t *testing.T) crypto.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	return priv
}

// fakeDialer counts invocations and can be told to fail the next N dials,
// for tests that need to observe dial counts or simulate transient dial
// failures without touching the network.
type fakeDialer struct {
	t     *testing.T
	dials atomic.Int64

	mu           sync.Mutex
	failRemaining int64
}

func newFakeDialer(t *testing.T) *fakeDialer {
	return &fakeDialer{t: t}
}

func (f *fakeDialer) Dialer() Dialer {
	return func(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
		f.dials.Add(1)

		f.mu.Lock()
		shouldFail := f.failRemaining > 0
		if shouldFail {
			f.failRemaining--
		}
		f.mu.Unlock()

		if shouldFail {
			return nil, errStubDialFailure
		}
		return newFakeSSHClient(f.t), nil
	}
}

func (f *fakeDialer) failNextDial(n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRemaining = n
}
