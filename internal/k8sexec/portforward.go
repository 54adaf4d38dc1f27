// SPDX-License-Identifier: MPL-2.0

package k8sexec

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/xec-sh/xec-core/internal/adapter"
	"github.com/xec-sh/xec-core/internal/eventbus"
)

// forwardingLineRE matches kubectl's "Forwarding from 127.0.0.1:PORT ->
// REMOTE" readiness line.
var forwardingLineRE = regexp.MustCompile(`Forwarding from [^:]+:(\d+) ->`)

// portForward is a handle to a running `kubectl port-forward` child process.
type portForward struct {
	cmd        *exec.Cmd
	localPort  atomic.Int32
	remotePort int
	ready      chan struct{}
	bus        *eventbus.Bus
	untrack    func()
	open       atomic.Bool
}

var _ adapter.Tunnel = (*portForward)(nil)

func (p *portForward) LocalHost() string  { return "127.0.0.1" }
func (p *portForward) LocalPort() int     { return int(p.localPort.Load()) }
func (p *portForward) RemoteHost() string { return "" }
func (p *portForward) RemotePort() int    { return p.remotePort }
func (p *portForward) IsOpen() bool       { return p.open.Load() }

// Open waits for kubectl to report the forwarded port is bound.
func (p *portForward) Open(ctx context.Context) error {
	select {
	case <-p.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close terminates the kubectl child process and removes tracking.
func (p *portForward) Close() error {
	if !p.open.CompareAndSwap(true, false) {
		return nil
	}
	if p.untrack != nil {
		p.untrack()
	}
	if p.bus != nil {
		p.bus.Publish(eventbus.Event{Kind: eventbus.KindK8sPortForwardClosed, LocalPort: p.LocalPort(), RemotePort: p.remotePort})
	}
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// PortForward implements adapter.PortForwarder.
func (a *Adapter) PortForward(ctx context.Context, opts adapter.PortForwardOptions) (adapter.Tunnel, error) {
	if opts.Pod == "" {
		return nil, fmt.Errorf("Pod name or selector is required")
	}

	localSpec := strconv.Itoa(opts.LocalPort)
	if opts.DynamicLocalPort || opts.LocalPort == 0 {
		localSpec = "0"
	}

	args := []string{"port-forward"}
	if opts.Namespace != "" {
		args = append(args, "-n", opts.Namespace)
	}
	args = append(args, "pod/"+opts.Pod, fmt.Sprintf("%s:%d", localSpec, opts.RemotePort))

	cmd := a.execCommand(ctx, a.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open port-forward stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start kubectl port-forward: %w", err)
	}

	pf := &portForward{
		cmd:        cmd,
		remotePort: opts.RemotePort,
		ready:      make(chan struct{}),
		bus:        a.bus,
	}
	pf.open.Store(true)

	go pf.watchReadiness(stdout)

	trackKey := fmt.Sprintf("%s/%d", opts.Pod, opts.RemotePort)
	a.mu.Lock()
	a.forwards[trackKey] = pf
	a.mu.Unlock()
	pf.untrack = func() {
		a.mu.Lock()
		delete(a.forwards, trackKey)
		a.mu.Unlock()
	}

	select {
	case <-pf.ready:
	case <-time.After(10 * time.Second):
		_ = pf.Close()
		return nil, fmt.Errorf("timed out waiting for kubectl port-forward to bind")
	case <-ctx.Done():
		_ = pf.Close()
		return nil, ctx.Err()
	}

	if a.bus != nil {
		a.bus.Publish(eventbus.Event{Kind: eventbus.KindK8sPortForwardCreated, LocalPort: pf.LocalPort(), RemotePort: pf.remotePort})
	}

	return pf, nil
}

func (p *portForward) watchReadiness(stdout io.ReadCloser) {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if m := forwardingLineRE.FindStringSubmatch(line); m != nil {
			port, err := strconv.Atoi(m[1])
			if err == nil {
				p.localPort.Store(int32(port))
				closeOnce(p.ready)
			}
		}
	}
}

func closeOnce(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}
