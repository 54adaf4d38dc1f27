// SPDX-License-Identifier: MPL-2.0

package sshexec

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/ssh"

	"github.com/xec-sh/xec-core/internal/core"
	"github.com/xec-sh/xec-core/internal/eventbus"
)

// Metrics mirrors the counters spec.md §4.5 requires the pool to expose.
type Metrics struct {
	TotalConnections    int64
	ActiveConnections   int64
	IdleConnections     int64
	ConnectionsCreated  int64
	ConnectionsDestroyed int64
	ConnectionReuses    int64
}

// Dialer opens an SSH client connection. Production code uses dialContext
// (dial.go); tests substitute a fake to avoid real network I/O.
type Dialer func(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error)

// Pool is a keyed pool of live SSH connections with keep-alive, idle and
// max-lifetime eviction, and error-threshold-triggered disposal (spec.md
// §4.5). It is safe for concurrent use.
type Pool struct {
	policy PoolPolicy
	dial   Dialer
	bus    *eventbus.Bus
	logger *log.Logger

	mu       sync.Mutex
	conns    map[ConnectionKey][]*pooledConnection
	total    int
	notify   chan struct{}
	disposed bool

	created  atomic.Int64
	destroyed atomic.Int64
	reuses   atomic.Int64
}

// NewPool creates a Pool. bus may be nil to disable event emission.
func NewPool(policy PoolPolicy, dial Dialer, bus *eventbus.Bus, logger *log.Logger) *Pool {
	return &Pool{
		policy: policy.withDefaults(),
		dial:   dial,
		bus:    bus,
		logger: logger,
		conns:  make(map[ConnectionKey][]*pooledConnection),
		notify: make(chan struct{}),
	}
}

// Checkout returns a busy, ready-to-use connection for key, creating one if
// necessary. It blocks (FIFO-ish, woken on every release) until a slot is
// available or ctx/connect_timeout elapses.
func (p *Pool) Checkout(ctx context.Context, key ConnectionKey, config *ssh.ClientConfig, addr string) (*pooledConnection, error) {
	deadline := time.Now().Add(p.policy.ConnectTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	timeoutCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for {
		conn, mustWait, err := p.tryCheckout(timeoutCtx, key, config, addr)
		if err != nil {
			return nil, err
		}
		if conn != nil {
			return conn, nil
		}
		if !mustWait {
			continue
		}

		p.mu.Lock()
		ch := p.notify
		p.mu.Unlock()

		select {
		case <-ch:
		case <-timeoutCtx.Done():
			return nil, &core.TimeoutError{Phase: "checkout"}
		}
	}
}

func (p *Pool) tryCheckout(ctx context.Context, key ConnectionKey, config *ssh.ClientConfig, addr string) (*pooledConnection, bool, error) {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil, false, &core.DisposedError{Component: "SSH connection pool"}
	}

	// PoolPolicy.Enabled gates reuse: with pooling disabled, every checkout
	// dials a fresh connection and Release destroys it immediately rather
	// than returning it to the idle set (spec.md §4.5, §3 "enabled").
	if p.policy.Enabled {
		for _, c := range p.conns[key] {
			if c.State() != stateIdle {
				continue
			}
			if c.isExpired() || p.isIdleTimedOut(c) || c.State() == stateBroken {
				p.evictLocked(key, c)
				continue
			}
			if c.tryAcquire() {
				p.mu.Unlock()
				c.recordUse()
				p.reuses.Add(1)
				p.emit(eventbus.KindSSHConnectionReused, key, c.id)
				return c, false, nil
			}
		}
	}

	if p.total >= p.policy.MaxConnections {
		p.mu.Unlock()
		return nil, true, nil
	}
	p.total++
	p.mu.Unlock()

	client, err := p.dial(ctx, addr, config)
	if err != nil {
		p.mu.Lock()
		p.total--
		p.mu.Unlock()
		return nil, false, &core.ConnectionError{Target: addr, Cause: err}
	}

	conn := newPooledConnection(key, client, addr, config, p.policy.MaxLifetime)
	conn.tryAcquire()
	conn.recordUse()

	p.mu.Lock()
	p.conns[key] = append(p.conns[key], conn)
	p.mu.Unlock()

	p.created.Add(1)
	if p.policy.KeepAlive {
		p.startKeepAlive(conn)
	}
	p.emit(eventbus.KindSSHConnectionCreated, key, conn.id)
	return conn, false, nil
}

// isIdleTimedOut reports whether conn has sat idle longer than
// policy.IdleTimeout (spec.md §4.5 "idle_timeout_ms"). A zero IdleTimeout
// means idle connections never expire on that basis alone.
func (p *Pool) isIdleTimedOut(conn *pooledConnection) bool {
	if p.policy.IdleTimeout <= 0 {
		return false
	}
	return conn.idleDuration() > p.policy.IdleTimeout
}

// evictLocked removes conn from key's slice and disposes it. Caller holds
// p.mu.
func (p *Pool) evictLocked(key ConnectionKey, conn *pooledConnection) {
	list := p.conns[key]
	for i, c := range list {
		if c == conn {
			p.conns[key] = append(list[:i], list[i+1:]...)
			break
		}
	}
	p.total--
	p.destroyed.Add(1)
	p.emit(eventbus.KindSSHConnectionClosed, key, conn.id)
	go func() {
		_ = conn.close()
	}()
}

// Release returns conn to the idle state and wakes any checkout waiters. If
// pooling is disabled (PoolPolicy.Enabled == false), conn is destroyed
// instead of being kept around for reuse.
func (p *Pool) Release(conn *pooledConnection) {
	if !p.policy.Enabled {
		p.mu.Lock()
		if !p.disposed {
			p.evictLocked(conn.key, conn)
		}
		p.wakeWaitersLocked()
		return
	}

	conn.release()
	p.mu.Lock()
	p.wakeWaitersLocked()
}

// wakeWaitersLocked replaces p.notify and closes the old channel, waking any
// Checkout callers blocked on it. Caller holds p.mu; wakeWaitersLocked
// releases it.
func (p *Pool) wakeWaitersLocked() {
	old := p.notify
	p.notify = make(chan struct{})
	p.mu.Unlock()
	close(old)
}

// maxReconnectAttempts bounds how many times ReportError will try to
// transparently re-dial a broken connection before giving up and evicting it
// for good, even with AutoReconnect enabled.
const maxReconnectAttempts = 3

// ReportError increments conn's error_count; past error_threshold, with
// AutoReconnect enabled, the pool attempts to re-dial the connection in
// place (spec.md §4.5 "auto_reconnect") before falling back to marking it
// broken and evicting it so the next checkout creates a fresh one (spec.md
// §4.5, §7).
func (p *Pool) ReportError(conn *pooledConnection) {
	if !conn.recordError(p.policy.ErrorThreshold) {
		p.Release(conn)
		return
	}

	if p.policy.AutoReconnect && conn.beginReconnectAttempt(maxReconnectAttempts) {
		if p.tryReconnect(conn) {
			p.Release(conn)
			return
		}
	}

	conn.markBroken()
	p.mu.Lock()
	p.evictLocked(conn.key, conn)
	p.mu.Unlock()
}

// tryReconnect re-dials conn's address/config and swaps in the new client on
// success, closing the old one. Reports whether reconnection succeeded.
func (p *Pool) tryReconnect(conn *pooledConnection) bool {
	client, err := p.dial(context.Background(), conn.addr, conn.dialConfig)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("ssh auto-reconnect failed", "key", conn.key.String(), "error", err)
		}
		return false
	}
	old := conn.replaceClient(client)
	if old != nil {
		_ = old.Close()
	}
	return true
}

func (p *Pool) startKeepAlive(conn *pooledConnection) {
	conn.keepAliveStop = make(chan struct{})
	ticker := time.NewTicker(p.policy.KeepAliveInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-conn.keepAliveStop:
				return
			case <-ticker.C:
				if conn.State() != stateIdle {
					continue
				}
				_, _, err := conn.client.SendRequest("keepalive@xec-core", true, nil)
				if err != nil {
					if p.logger != nil {
						p.logger.Warn("ssh keep-alive failed", "key", conn.key.String(), "error", err)
					}
					p.ReportError(conn)
					return
				}
			}
		}
	}()
}

// Metrics returns a snapshot of pool counters.
func (p *Pool) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	var active, idle int64
	for _, list := range p.conns {
		for _, c := range list {
			switch c.State() {
			case stateBusy:
				active++
			case stateIdle:
				idle++
			}
		}
	}
	return Metrics{
		TotalConnections:     int64(p.total),
		ActiveConnections:    active,
		IdleConnections:      idle,
		ConnectionsCreated:   p.created.Load(),
		ConnectionsDestroyed: p.destroyed.Load(),
		ConnectionReuses:     p.reuses.Load(),
	}
}

// Dispose cancels every keep-alive timer, closes every connection
// best-effort, and clears the pool. Idempotent.
func (p *Pool) Dispose() []error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil
	}
	p.disposed = true
	all := p.conns
	p.conns = make(map[ConnectionKey][]*pooledConnection)
	p.total = 0
	p.mu.Unlock()

	var mu sync.Mutex
	var errs []error
	var wg sync.WaitGroup
	for _, list := range all {
		for _, c := range list {
			wg.Add(1)
			go func(c *pooledConnection) {
				defer wg.Done()
				if err := c.close(); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}(c)
		}
	}
	wg.Wait()
	return errs
}

func (p *Pool) emit(kind string, key ConnectionKey, connID string) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{Kind: kind, Target: key.String(), ConnectionID: connID})
}
