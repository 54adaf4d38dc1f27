// SPDX-License-Identifier: MPL-2.0

// Package eventbus provides a typed, bounded, non-blocking publish/subscribe
// mechanism. It replaces the stringly-typed EventEmitter pattern flagged for
// re-architecture in spec.md §9: every event is a concrete Go value, and a
// slow subscriber drops events rather than stalling the producer.
package eventbus

import "sync"

// Event is the closed set of lifecycle events the engine and adapters emit.
type Event struct {
	// Kind identifies the event (e.g. "ssh:tunnel-created").
	Kind string
	// Host, Container, or Pod identity the event concerns, when applicable.
	Target string
	// ConnectionID identifies the specific pooled SSH connection an
	// ssh:connection-* event concerns, distinguishing concurrent connections
	// that share the same Target/ConnectionKey.
	ConnectionID string
	// LocalPort, RemotePort describe tunnel/port-forward events; zero otherwise.
	LocalPort  int
	RemotePort int
	// RemoteHost is the forwarded destination host, when applicable.
	RemoteHost string
	// Type distinguishes tunnel flavors (e.g. "ssh", "k8s-port-forward").
	Type string
}

// Event kind constants, matching spec.md §6.
const (
	KindSSHConnectionCreated  = "ssh:connection-created"
	KindSSHConnectionClosed   = "ssh:connection-closed"
	KindSSHConnectionReused   = "ssh:connection-reused"
	KindSSHTunnelCreated      = "ssh:tunnel-created"
	KindSSHTunnelClosed       = "ssh:tunnel-closed"
	KindTunnelCreated         = "tunnel:created"
	KindK8sPortForwardCreated = "k8s:port-forward-created"
	KindK8sPortForwardClosed  = "k8s:port-forward-closed"
	KindAdapterConnected      = "adapter:connected"
	KindAdapterDisconnected   = "adapter:disconnected"
	KindMemorySnapshot        = "memory:snapshot"
)

// subscriberQueueSize bounds per-subscriber backlog before events are dropped.
const subscriberQueueSize = 64

// Bus fans out Events to any number of subscribers. Delivery is best-effort:
// a subscriber channel that is full has the event dropped for it, so one slow
// consumer can never block publication to others or to the producer.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New creates an empty event bus.
func New() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new listener and returns a channel of events plus an
// Unsubscribe function. The channel is closed when Unsubscribe is called.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, subscriberQueueSize)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
}

// Publish fans an event out to every subscriber without blocking. Events for
// a single call are delivered to each subscriber in the order Publish was
// called (the map iteration order across subscribers is unspecified, but a
// single subscriber's channel preserves publish order since each send is
// sequential on that channel).
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber backlog full; drop rather than block the producer.
		}
	}
}

// SubscriberCount reports how many listeners are currently registered.
// Useful for tests and diagnostics.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
