// SPDX-License-Identifier: MPL-2.0

package sshexec

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/xec-sh/xec-core/internal/adapter"
	"github.com/xec-sh/xec-core/internal/eventbus"
)

// tunnel is a local TCP listener that forwards every accepted connection
// over a direct-tcpip channel on the owning pooled connection (spec.md
// §4.4).
type tunnel struct {
	localHost  string
	remoteHost string
	remotePort int

	listener net.Listener
	conn     *pooledConnection
	bus      *eventbus.Bus
	release  func(*pooledConnection)
	untrack  func()

	localPort atomic.Int32
	open      atomic.Bool

	wg sync.WaitGroup

	childrenMu sync.Mutex
	children   map[net.Conn]struct{}
}

var _ adapter.Tunnel = (*tunnel)(nil)

func (t *tunnel) LocalHost() string  { return t.localHost }
func (t *tunnel) LocalPort() int     { return int(t.localPort.Load()) }
func (t *tunnel) RemoteHost() string { return t.remoteHost }
func (t *tunnel) RemotePort() int    { return t.remotePort }
func (t *tunnel) IsOpen() bool       { return t.open.Load() }

// acceptLoop accepts local connections until the listener is closed,
// piping each one to a fresh direct-tcpip channel on the owning connection.
func (t *tunnel) acceptLoop() {
	for {
		local, err := t.listener.Accept()
		if err != nil {
			return
		}
		t.wg.Add(1)
		go t.serve(local)
	}
}

func (t *tunnel) serve(local net.Conn) {
	defer t.wg.Done()
	defer t.untrackChild(local)
	defer local.Close()

	t.trackChild(local)

	remoteAddr := net.JoinHostPort(t.remoteHost, strconv.Itoa(t.remotePort))
	remote, err := t.conn.client.Dial("tcp", remoteAddr)
	if err != nil {
		return
	}
	defer t.untrackChild(remote)
	defer remote.Close()
	t.trackChild(remote)

	var pipeWG sync.WaitGroup
	pipeWG.Add(2)
	go func() { defer pipeWG.Done(); _, _ = io.Copy(remote, local) }()
	go func() { defer pipeWG.Done(); _, _ = io.Copy(local, remote) }()
	pipeWG.Wait()
}

func (t *tunnel) trackChild(c net.Conn) {
	t.childrenMu.Lock()
	defer t.childrenMu.Unlock()
	if t.children == nil {
		t.children = make(map[net.Conn]struct{})
	}
	t.children[c] = struct{}{}
}

func (t *tunnel) untrackChild(c net.Conn) {
	t.childrenMu.Lock()
	defer t.childrenMu.Unlock()
	delete(t.children, c)
}

// closeChildren force-closes every currently tracked local/remote connection,
// unblocking serve()'s io.Copy pairs that would otherwise only return on
// their own EOF — which a long-lived forwarded connection may never produce.
func (t *tunnel) closeChildren() {
	t.childrenMu.Lock()
	defer t.childrenMu.Unlock()
	for c := range t.children {
		_ = c.Close()
	}
}

// Close stops accepting new local connections, force-closes every live
// accepted child connection so blocked serve() goroutines unwind, waits for
// them to exit, removes tracking, and emits ssh:tunnel-closed.
func (t *tunnel) Close() error {
	if !t.open.CompareAndSwap(true, false) {
		return nil
	}
	err := t.listener.Close()
	t.closeChildren()
	t.wg.Wait()
	if t.release != nil {
		t.release(t.conn)
	}
	if t.untrack != nil {
		t.untrack()
	}
	if t.bus != nil {
		t.bus.Publish(eventbus.Event{
			Kind:       eventbus.KindSSHTunnelClosed,
			LocalPort:  t.LocalPort(),
			RemoteHost: t.remoteHost,
			RemotePort: t.remotePort,
		})
	}
	return err
}

func tunnelTrackingKey(localPort int, remoteHost string, remotePort int) string {
	return fmt.Sprintf("%d-%s:%d", localPort, remoteHost, remotePort)
}

// openTunnel binds the local listener and starts the accept loop. conn must
// already be checked out and busy for the tunnel's lifetime.
func openTunnel(ctx context.Context, conn *pooledConnection, opts adapter.TunnelOptions, bus *eventbus.Bus, release func(*pooledConnection)) (*tunnel, error) {
	host := opts.LocalHost
	if host == "" {
		host = "127.0.0.1"
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(opts.LocalPort)))
	if err != nil {
		return nil, fmt.Errorf("bind tunnel listener: %w", err)
	}

	_, portStr, _ := net.SplitHostPort(listener.Addr().String())
	port, _ := strconv.Atoi(portStr)

	t := &tunnel{
		localHost:  host,
		remoteHost: opts.RemoteHost,
		remotePort: opts.RemotePort,
		listener:   listener,
		conn:       conn,
		bus:        bus,
		release:    release,
	}
	t.localPort.Store(int32(port))
	t.open.Store(true)

	go t.acceptLoop()

	if bus != nil {
		bus.Publish(eventbus.Event{
			Kind:       eventbus.KindSSHTunnelCreated,
			LocalPort:  port,
			RemoteHost: opts.RemoteHost,
			RemotePort: opts.RemotePort,
		})
		bus.Publish(eventbus.Event{
			Kind:       eventbus.KindTunnelCreated,
			LocalPort:  port,
			RemoteHost: opts.RemoteHost,
			RemotePort: opts.RemotePort,
			Type:       "ssh",
		})
	}

	return t, nil
}
