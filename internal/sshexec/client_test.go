// SPDX-License-Identifier: MPL-2.0

package sshexec

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/xec-sh/xec-core/internal/core"
	"github.com/xec-sh/xec-core/internal/secpass"
)

// execRequestPayload mirrors the wire format of an SSH "exec" channel
// request (RFC 4254 §6.5): a single string, the command line.
type execRequestPayload struct {
	Command string
}

// newFakeExecSSHClient returns a *ssh.Client backed by an in-memory net.Pipe
// server that accepts one "session" channel per Execute call and hands the
// requested command line to handler, which drives the channel's stdout/
// stderr/exit-status directly. No real network I/O occurs.
func newFakeExecSSHClient(t *testing.T, handler func(command string, ch ssh.Channel)) *ssh.Client {
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
			if newChan.ChannelType() != "session" {
				_ = newChan.Reject(ssh.UnknownChannelType, "only session channels supported")
				continue
			}
			ch, requests, err := newChan.Accept()
			if err != nil {
				continue
			}
			go func() {
				defer ch.Close()
				for req := range requests {
					if req.Type != "exec" {
						if req.WantReply {
							_ = req.Reply(false, nil)
						}
						continue
					}
					var payload execRequestPayload
					_ = ssh.Unmarshal(req.Payload, &payload)
					if req.WantReply {
						_ = req.Reply(true, nil)
					}
					handler(payload.Command, ch)
					return
				}
			}()
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

func sendExitStatus(ch ssh.Channel, code int) {
	var reply struct{ Status uint32 }
	reply.Status = uint32(code)
	_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(&reply))
}

func succeedWithOutput(stdout string, exitCode int) func(string, ssh.Channel) {
	return func(_ string, ch ssh.Channel) {
		_, _ = io.WriteString(ch, stdout)
		sendExitStatus(ch, exitCode)
	}
}

// newTestAdapter wires an Adapter straight to a fake Dialer, bypassing
// New/dialContext so no real network/DNS lookups ever happen.
func newTestAdapter(policy PoolPolicy, dial Dialer) *Adapter {
	return &Adapter{
		pool:    NewPool(policy, dial, nil, nil),
		secpass: secpass.New(""),
		tunnels: make(map[string]*tunnel),
	}
}

func testSSHDescriptor(host string) core.SSHDescriptor {
	return core.SSHDescriptor{Host: host, User: "ci", Port: 22, Password: "pw"}
}

func TestAdapterExecuteReturnsStdoutAndExitCode(t *testing.T) {
	t.Parallel()

	dial := func(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
		return newFakeExecSSHClient(t, succeedWithOutput("hello\n", 0)), nil
	}
	a := newTestAdapter(DefaultPoolPolicy(), dial)
	defer a.Dispose()

	cmd := core.NewCommand("echo hello")
	cmd.Adapter.SSH = testSSHDescriptor("build")

	result, err := a.Execute(context.Background(), cmd)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.StdoutString() != "hello\n" {
		t.Errorf("unexpected stdout: %q", result.StdoutString())
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
}

func TestAdapterExecuteNonZeroExitReturnsExecutionError(t *testing.T) {
	t.Parallel()

	dial := func(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
		return newFakeExecSSHClient(t, succeedWithOutput("", 7)), nil
	}
	a := newTestAdapter(DefaultPoolPolicy(), dial)
	defer a.Dispose()

	cmd := core.NewCommand("false")
	cmd.Adapter.SSH = testSSHDescriptor("build")

	_, err := a.Execute(context.Background(), cmd)
	var execErr *core.ExecutionError
	if !asExecutionError(err, &execErr) {
		t.Fatalf("expected ExecutionError, got %T: %v", err, err)
	}
	if execErr.ExitCode != 7 {
		t.Errorf("expected exit code 7, got %d", execErr.ExitCode)
	}
}

func TestAdapterExecuteTimeoutProducesTimeoutError(t *testing.T) {
	t.Parallel()

	dial := func(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
		return newFakeExecSSHClient(t, func(_ string, ch ssh.Channel) {
			time.Sleep(time.Second)
			sendExitStatus(ch, 0)
		}), nil
	}
	a := newTestAdapter(DefaultPoolPolicy(), dial)
	defer a.Dispose()

	cmd := core.NewCommand("sleep 1")
	cmd.TimeoutMs = 10
	cmd.Adapter.SSH = testSSHDescriptor("build")

	_, err := a.Execute(context.Background(), cmd)
	var timeoutErr *core.TimeoutError
	if !asTimeoutError(err, &timeoutErr) {
		t.Fatalf("expected TimeoutError, got %T: %v", err, err)
	}
	if timeoutErr.Phase != "exec" {
		t.Errorf("expected exec-phase timeout, got %q", timeoutErr.Phase)
	}
}

func TestAdapterExecuteCancellationReturnsPartialResult(t *testing.T) {
	t.Parallel()

	dial := func(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
		return newFakeExecSSHClient(t, func(_ string, ch ssh.Channel) {
			time.Sleep(time.Second)
			sendExitStatus(ch, 0)
		}), nil
	}
	a := newTestAdapter(DefaultPoolPolicy(), dial)
	defer a.Dispose()

	cmd := core.NewCommand("sleep 1")
	cmd.Adapter.SSH = testSSHDescriptor("build")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := a.Execute(ctx, cmd)
	var cancelErr *core.CancellationError
	if !asCancellationError(err, &cancelErr) {
		t.Fatalf("expected CancellationError, got %T: %v", err, err)
	}
}

func TestAdapterExecuteRejectsMissingHost(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(DefaultPoolPolicy(), func(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
		t.Fatal("dial should not be reached for an invalid descriptor")
		return nil, nil
	})
	defer a.Dispose()

	cmd := core.NewCommand("echo hi")
	cmd.Adapter.SSH = core.SSHDescriptor{User: "ci", Password: "pw"}

	_, err := a.Execute(context.Background(), cmd)
	var valErr *core.ValidationError
	if !asValidationError(err, &valErr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
}

func TestAdapterExecuteAfterDisposeFails(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(DefaultPoolPolicy(), func(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
		t.Fatal("dial should not be reached once disposed")
		return nil, nil
	})
	if err := a.Dispose(); err != nil {
		t.Fatalf("dispose: %v", err)
	}

	cmd := core.NewCommand("echo hi")
	cmd.Adapter.SSH = testSSHDescriptor("build")

	_, err := a.Execute(context.Background(), cmd)
	var disposedErr *core.DisposedError
	if !asDisposedError(err, &disposedErr) {
		t.Fatalf("expected DisposedError, got %T: %v", err, err)
	}
}

func asExecutionError(err error, target **core.ExecutionError) bool {
	e, ok := err.(*core.ExecutionError)
	if !ok {
		return false
	}
	*target = e
	return true
}

func asCancellationError(err error, target **core.CancellationError) bool {
	e, ok := err.(*core.CancellationError)
	if !ok {
		return false
	}
	*target = e
	return true
}

func asValidationError(err error, target **core.ValidationError) bool {
	e, ok := err.(*core.ValidationError)
	if !ok {
		return false
	}
	*target = e
	return true
}

func asDisposedError(err error, target **core.DisposedError) bool {
	e, ok := err.(*core.DisposedError)
	if !ok {
		return false
	}
	*target = e
	return true
}
