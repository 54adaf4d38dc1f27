// SPDX-License-Identifier: MPL-2.0

package k8sexec

import (
	"context"
	"fmt"

	"github.com/xec-sh/xec-core/internal/adapter"
)

// CopyFiles implements adapter.FileCopier, building `kubectl cp` arguments.
// The pod-side path (dst for CopyToRemote, src for CopyFromRemote) is passed
// as given, prefixed with `namespace/` when opts.Namespace is set; container,
// when set, is passed as `-c name`.
func (a *Adapter) CopyFiles(ctx context.Context, src, dst string, opts adapter.CopyOptions) error {
	args := []string{"cp"}
	if opts.Container != "" {
		args = append(args, "-c", opts.Container)
	}

	podSide := func(path string) string {
		if opts.Namespace != "" {
			return opts.Namespace + "/" + path
		}
		return path
	}

	switch opts.Direction {
	case adapter.CopyToRemote:
		args = append(args, src, podSide(dst))
	case adapter.CopyFromRemote:
		args = append(args, podSide(src), dst)
	default:
		return fmt.Errorf("unknown copy direction %q", opts.Direction)
	}

	cmd := a.execCommand(ctx, a.binary, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("kubectl cp failed: %w: %s", err, out)
	}
	return nil
}
