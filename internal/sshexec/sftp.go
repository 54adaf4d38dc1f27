// SPDX-License-Identifier: MPL-2.0

package sshexec

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"

	"github.com/pkg/sftp"

	"github.com/xec-sh/xec-core/internal/core"
)

// sftpSession opens a fresh SFTP client on an existing connection for the
// target host. Commands that only need auth/host (not the rest of the
// Command) route through here, so callers pass an SSHDescriptor directly.
func (a *Adapter) sftpSession(ctx context.Context, desc core.SSHDescriptor) (*sftp.Client, *pooledConnection, error) {
	if err := validateDescriptor(desc); err != nil {
		return nil, nil, err
	}
	auth, err := authMethods(desc)
	if err != nil {
		return nil, nil, err
	}

	key := KeyFor(desc)
	addr := net.JoinHostPort(desc.Host, portOrDefault(desc.Port))
	conn, err := a.pool.Checkout(ctx, key, clientConfig(desc.User, auth), addr)
	if err != nil {
		return nil, nil, err
	}

	client, err := sftp.NewClient(conn.client)
	if err != nil {
		a.pool.ReportError(conn)
		return nil, nil, &core.ConnectionError{Target: desc.Host, Cause: err}
	}
	return client, conn, nil
}

// UploadFile implements adapter.FileUploader. It writes to remotePath+".tmp"
// and renames into place so a reader never observes a partial file.
func (a *Adapter) UploadFile(ctx context.Context, localPath, remotePath string) error {
	return a.uploadFileTo(ctx, defaultDescriptor(a), localPath, remotePath)
}

func (a *Adapter) uploadFileTo(ctx context.Context, desc core.SSHDescriptor, localPath, remotePath string) error {
	client, conn, err := a.sftpSession(ctx, desc)
	if err != nil {
		return err
	}
	defer client.Close()
	defer a.pool.Release(conn)

	local, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local file %s: %w", localPath, err)
	}
	defer local.Close()

	info, err := local.Stat()
	if err != nil {
		return fmt.Errorf("stat local file %s: %w", localPath, err)
	}

	if err := client.MkdirAll(filepath.ToSlash(filepath.Dir(remotePath))); err != nil {
		return fmt.Errorf("create remote parent for %s: %w", remotePath, err)
	}

	tmpPath := remotePath + ".tmp"
	remote, err := client.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create remote temp file %s: %w", tmpPath, err)
	}

	if _, err := io.Copy(remote, local); err != nil {
		remote.Close()
		_ = client.Remove(tmpPath)
		return fmt.Errorf("write remote temp file %s: %w", tmpPath, err)
	}
	if err := remote.Chmod(info.Mode().Perm()); err != nil {
		remote.Close()
		_ = client.Remove(tmpPath)
		return fmt.Errorf("chmod remote temp file %s: %w", tmpPath, err)
	}
	if err := remote.Close(); err != nil {
		_ = client.Remove(tmpPath)
		return fmt.Errorf("close remote temp file %s: %w", tmpPath, err)
	}

	if err := client.Rename(tmpPath, remotePath); err != nil {
		_ = client.Remove(tmpPath)
		return fmt.Errorf("rename %s to %s: %w", tmpPath, remotePath, err)
	}
	return nil
}

// UploadDirectory implements adapter.FileUploader, walking localPath
// depth-first and creating missing remote parents as it goes.
func (a *Adapter) UploadDirectory(ctx context.Context, localPath, remotePath string) error {
	desc := defaultDescriptor(a)
	return filepath.WalkDir(localPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(localPath, path)
		if err != nil {
			return err
		}
		dest := filepath.ToSlash(filepath.Join(remotePath, rel))
		if d.IsDir() {
			return nil
		}
		return a.uploadFileTo(ctx, desc, path, dest)
	})
}

// DownloadFile implements adapter.FileDownloader.
func (a *Adapter) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	desc := defaultDescriptor(a)
	client, conn, err := a.sftpSession(ctx, desc)
	if err != nil {
		return err
	}
	defer client.Close()
	defer a.pool.Release(conn)

	remote, err := client.Open(remotePath)
	if err != nil {
		return fmt.Errorf("open remote file %s: %w", remotePath, err)
	}
	defer remote.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create local parent for %s: %w", localPath, err)
	}

	local, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local file %s: %w", localPath, err)
	}
	defer local.Close()

	if _, err := io.Copy(local, remote); err != nil {
		return fmt.Errorf("download %s: %w", remotePath, err)
	}
	return nil
}

// DownloadDirectory implements adapter.FileDownloader, walking remotePath
// depth-first over the same SFTP session.
func (a *Adapter) DownloadDirectory(ctx context.Context, remotePath, localPath string) error {
	desc := defaultDescriptor(a)
	client, conn, err := a.sftpSession(ctx, desc)
	if err != nil {
		return err
	}
	defer client.Close()
	defer a.pool.Release(conn)

	walker := client.Walk(remotePath)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			return err
		}
		if walker.Stat().IsDir() {
			continue
		}
		rel, err := filepath.Rel(remotePath, walker.Path())
		if err != nil {
			return err
		}
		dest := filepath.Join(localPath, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}

		remote, err := client.Open(walker.Path())
		if err != nil {
			return err
		}
		local, err := os.Create(dest)
		if err != nil {
			remote.Close()
			return err
		}
		_, copyErr := io.Copy(local, remote)
		remote.Close()
		local.Close()
		if copyErr != nil {
			return copyErr
		}
	}
	return nil
}

// defaultDescriptor resolves the target used by path-pair file operations:
// the descriptor last recorded by Bind, or the zero SSHDescriptor when Bind
// was never called. Engine.SSH does not call Bind.
func defaultDescriptor(a *Adapter) core.SSHDescriptor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.boundDescriptor
}

// Bind records the descriptor used by subsequent FileUploader/FileDownloader
// calls made directly on this adapter (as opposed to through Execute, which
// takes its descriptor from each Command).
func (a *Adapter) Bind(desc core.SSHDescriptor) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.boundDescriptor = desc
}
