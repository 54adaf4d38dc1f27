// SPDX-License-Identifier: MPL-2.0

package sshexec

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
)

// connState is the lifecycle state of a pooledConnection, mirroring the
// atomic compare-and-swap style the SSH server package uses for its own
// lifecycle (internal/core/serverbase.State in the teacher repo).
type connState int32

const (
	stateIdle connState = iota
	stateBusy
	stateBroken
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateBusy:
		return "busy"
	case stateBroken:
		return "broken"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// pooledConnection is one entry in the pool: a live SSH client plus the
// bookkeeping spec.md §3 names (use_count, error_count, deadlines).
type pooledConnection struct {
	id     string
	key    ConnectionKey
	client *ssh.Client

	// addr and dialConfig are retained so a broken connection can be
	// transparently re-dialed in place when PoolPolicy.AutoReconnect is set,
	// without the caller having to re-resolve auth/address.
	addr       string
	dialConfig *ssh.ClientConfig

	state atomic.Int32

	createdAt           time.Time
	maxLifetimeDeadline time.Time
	maxLifetime         time.Duration

	mu                sync.Mutex
	lastUsedAt        time.Time
	useCount          int64
	errorCount        int
	reconnectAttempts int

	keepAliveStop chan struct{}
}

func newPooledConnection(key ConnectionKey, client *ssh.Client, addr string, dialConfig *ssh.ClientConfig, maxLifetime time.Duration) *pooledConnection {
	now := time.Now()
	c := &pooledConnection{
		id:                  uuid.NewString(),
		key:                 key,
		client:              client,
		addr:                addr,
		dialConfig:          dialConfig,
		createdAt:           now,
		lastUsedAt:          now,
		maxLifetime:         maxLifetime,
		maxLifetimeDeadline: now.Add(maxLifetime),
	}
	c.state.Store(int32(stateIdle))
	return c
}

func (c *pooledConnection) State() connState { return connState(c.state.Load()) }

// tryAcquire transitions idle -> busy. Returns false if the connection is
// not available (busy, broken, or closed).
func (c *pooledConnection) tryAcquire() bool {
	return c.state.CompareAndSwap(int32(stateIdle), int32(stateBusy))
}

func (c *pooledConnection) release() {
	c.state.CompareAndSwap(int32(stateBusy), int32(stateIdle))
}

func (c *pooledConnection) markBroken() {
	c.state.Store(int32(stateBroken))
}

func (c *pooledConnection) markClosed() {
	c.state.Store(int32(stateClosed))
}

// isExpired reports whether the connection has outlived max_lifetime_ms.
func (c *pooledConnection) isExpired() bool {
	return time.Now().After(c.maxLifetimeDeadline)
}

func (c *pooledConnection) recordUse() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUsedAt = time.Now()
	c.useCount++
}

// recordError increments error_count and reports whether the connection has
// now crossed threshold and must be marked broken.
func (c *pooledConnection) recordError(threshold int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorCount++
	return c.errorCount >= threshold
}

func (c *pooledConnection) idleDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastUsedAt)
}

// beginReconnectAttempt increments reconnect_attempts and reports whether
// another attempt is still allowed under max.
func (c *pooledConnection) beginReconnectAttempt(max int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnectAttempts++
	return c.reconnectAttempts <= max
}

// replaceClient swaps in a freshly dialed client after a successful
// reconnect, resetting error_count and the max-lifetime deadline as if the
// connection were newly created, and reports the client it replaced so the
// caller can close it.
func (c *pooledConnection) replaceClient(client *ssh.Client) *ssh.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.client
	c.client = client
	c.errorCount = 0
	c.reconnectAttempts = 0
	c.lastUsedAt = time.Now()
	c.maxLifetimeDeadline = time.Now().Add(c.maxLifetime)
	return old
}

func (c *pooledConnection) close() error {
	c.markClosed()
	if c.keepAliveStop != nil {
		close(c.keepAliveStop)
		c.keepAliveStop = nil
	}
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
