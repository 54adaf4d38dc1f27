// SPDX-License-Identifier: MPL-2.0

package sshexec

import "time"

// PoolPolicy configures the connection pool (spec.md §4.5).
type PoolPolicy struct {
	Enabled             bool
	MaxConnections      int
	IdleTimeout         time.Duration
	MaxLifetime         time.Duration
	KeepAlive           bool
	KeepAliveInterval   time.Duration
	AutoReconnect       bool
	ErrorThreshold      int
	ConnectTimeout      time.Duration
}

// DefaultPoolPolicy returns the pool policy used when none is supplied.
func DefaultPoolPolicy() PoolPolicy {
	return PoolPolicy{
		Enabled:           true,
		MaxConnections:    10,
		IdleTimeout:       10 * time.Minute,
		MaxLifetime:       30 * time.Minute,
		KeepAlive:         true,
		KeepAliveInterval: 30 * time.Second,
		AutoReconnect:     true,
		ErrorThreshold:    3,
		ConnectTimeout:    30 * time.Second,
	}
}

func (p PoolPolicy) withDefaults() PoolPolicy {
	d := DefaultPoolPolicy()
	if p.MaxConnections == 0 {
		p.MaxConnections = d.MaxConnections
	}
	if p.IdleTimeout == 0 {
		p.IdleTimeout = d.IdleTimeout
	}
	if p.MaxLifetime == 0 {
		p.MaxLifetime = d.MaxLifetime
	}
	if p.KeepAliveInterval == 0 {
		p.KeepAliveInterval = d.KeepAliveInterval
	}
	if p.ErrorThreshold == 0 {
		p.ErrorThreshold = d.ErrorThreshold
	}
	if p.ConnectTimeout == 0 {
		p.ConnectTimeout = d.ConnectTimeout
	}
	return p
}
