// SPDX-License-Identifier: MPL-2.0

// Package adapter defines the capability contract every transport
// implementation (local, SSH, Docker, Kubernetes) satisfies, plus the
// registry the engine façade uses to dispatch a Command to the right one.
//
// spec.md §9 flags the source's BaseAdapter → SSHAdapter/Docker/K8s
// inheritance hierarchy for re-architecture into "an Adapter capability
// (trait/interface) ... per-adapter state lives in distinct struct types".
// That is exactly what Adapter below is: every concrete adapter is its own
// struct with no shared base type, only this interface in common.
package adapter

import (
	"context"
	"io"

	"github.com/xec-sh/xec-core/internal/core"
)

// Adapter is the mandatory contract every transport implements.
type Adapter interface {
	// Name identifies the adapter for logging and error messages.
	Name() string
	// Execute runs cmd against this adapter's target and returns a Result.
	Execute(ctx context.Context, cmd core.Command) (*core.Result, error)
	// Dispose releases every resource the adapter holds (connections,
	// tunnels, subprocesses). It is idempotent.
	Dispose() error
}

// FileUploader is implemented by adapters that can copy a local file or
// directory to the target (SSH via SFTP, Kubernetes via kubectl cp).
type FileUploader interface {
	UploadFile(ctx context.Context, localPath, remotePath string) error
	UploadDirectory(ctx context.Context, localPath, remotePath string) error
}

// FileDownloader is implemented by adapters that can copy a file or
// directory from the target back to the local machine.
type FileDownloader interface {
	DownloadFile(ctx context.Context, remotePath, localPath string) error
	DownloadDirectory(ctx context.Context, remotePath, localPath string) error
}

// Tunnel represents a locally-bound TCP listener forwarding accepted
// connections to a remote address over the adapter's transport.
type Tunnel interface {
	LocalHost() string
	LocalPort() int
	RemoteHost() string
	RemotePort() int
	IsOpen() bool
	Close() error
}

// Tunneler is implemented by adapters that support direct-tcpip style
// tunnels (SSH).
type Tunneler interface {
	Tunnel(ctx context.Context, opts TunnelOptions) (Tunnel, error)
	ListTunnels() []Tunnel
}

// TunnelOptions configures a Tunneler.Tunnel call. Target identifies which
// SSH connection the tunnel rides on (the descriptor behind the scoped
// engine that called .Tunnel()).
type TunnelOptions struct {
	LocalHost  string
	LocalPort  int // 0 means OS-assigned
	RemoteHost string
	RemotePort int
	Target     core.SSHDescriptor
}

// PortForwarder is implemented by adapters that support a kubectl-driven
// port-forward (Kubernetes).
type PortForwarder interface {
	PortForward(ctx context.Context, opts PortForwardOptions) (Tunnel, error)
}

// PortForwardOptions configures a PortForwarder.PortForward call.
type PortForwardOptions struct {
	Pod              string
	Namespace        string
	LocalPort        int
	RemotePort       int
	DynamicLocalPort bool
}

// LogStream is a handle to an in-progress log stream; Stop halts delivery.
type LogStream interface {
	Stop()
}

// LogStreamer is implemented by adapters that can tail process/container
// logs (Kubernetes).
type LogStreamer interface {
	StreamLogs(ctx context.Context, pod string, onData func([]byte), opts LogOptions) (LogStream, error)
}

// LogOptions configures a LogStreamer.StreamLogs call.
type LogOptions struct {
	Namespace  string
	Container  string
	Follow     bool
	Tail       int
	Previous   bool
	Timestamps bool
}

// FileCopier is implemented by adapters with a native bulk copy tool
// (kubectl cp) distinct from FileUploader/FileDownloader's path-pair API.
type FileCopier interface {
	CopyFiles(ctx context.Context, src, dst string, opts CopyOptions) error
}

// CopyDirection indicates which side of a CopyFiles call is local.
type CopyDirection string

const (
	CopyToRemote   CopyDirection = "to-remote"
	CopyFromRemote CopyDirection = "from-remote"
)

// CopyOptions configures a FileCopier.CopyFiles call.
type CopyOptions struct {
	Direction CopyDirection
	Namespace string
	Container string
}

// StdioBinding carries the I/O streams a caller wants wired to a running
// command, used by adapters whose underlying transport needs explicit
// plumbing (as opposed to Command.Stdin/StdinBytes alone).
type StdioBinding struct {
	Stdout io.Writer
	Stderr io.Writer
}
