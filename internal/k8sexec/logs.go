// SPDX-License-Identifier: MPL-2.0

package k8sexec

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/xec-sh/xec-core/internal/adapter"
)

// logHandle is a handle to a running `kubectl logs` child process.
type logHandle struct {
	cmd  *exec.Cmd
	stop chan struct{}
}

var _ adapter.LogStream = (*logHandle)(nil)

// Stop kills the kubectl logs child process, halting further on_data calls.
func (h *logHandle) Stop() {
	select {
	case <-h.stop:
		return
	default:
		close(h.stop)
	}
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
}

// StreamLogs implements adapter.LogStreamer. It spawns `kubectl logs [-f]
// [--tail=N] [-p] [--timestamps] [-c container] [-n namespace] pod` and
// invokes onData once per output line.
func (a *Adapter) StreamLogs(ctx context.Context, pod string, onData func([]byte), opts adapter.LogOptions) (adapter.LogStream, error) {
	if pod == "" {
		return nil, fmt.Errorf("Pod name or selector is required")
	}

	args := []string{"logs"}
	if opts.Namespace != "" {
		args = append(args, "-n", opts.Namespace)
	}
	if opts.Container != "" {
		args = append(args, "-c", opts.Container)
	}
	if opts.Follow {
		args = append(args, "-f")
	}
	if opts.Tail > 0 {
		args = append(args, "--tail="+strconv.Itoa(opts.Tail))
	}
	if opts.Previous {
		args = append(args, "-p")
	}
	if opts.Timestamps {
		args = append(args, "--timestamps")
	}
	args = append(args, pod)

	cmd := a.execCommand(ctx, a.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open kubectl logs stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start kubectl logs: %w", err)
	}

	handle := &logHandle{cmd: cmd, stop: make(chan struct{})}

	trackKey := pod + "/" + opts.Container
	a.mu.Lock()
	a.logs[trackKey] = handle
	a.mu.Unlock()

	go handle.pump(stdout, onData, func() {
		a.mu.Lock()
		delete(a.logs, trackKey)
		a.mu.Unlock()
	})

	return handle, nil
}

func (h *logHandle) pump(stdout io.ReadCloser, onData func([]byte), untrack func()) {
	defer untrack()
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-h.stop:
			return
		default:
		}
		line := append([]byte(nil), scanner.Bytes()...)
		onData(line)
	}
}

// Follow is sugar for StreamLogs(pod, onData, {Follow: true, ...}).
func (a *Adapter) Follow(ctx context.Context, pod string, onData func([]byte), opts adapter.LogOptions) (adapter.LogStream, error) {
	opts.Follow = true
	return a.StreamLogs(ctx, pod, onData, opts)
}
