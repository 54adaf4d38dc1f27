// SPDX-License-Identifier: MPL-2.0

package xec

import (
	"context"
	"io"
)

// PipeResult carries both stages' outcomes (SPEC_FULL.md §4 "pipe
// operation").
type PipeResult struct {
	First  *Result
	Second *Result
}

// Pipe chains first's stdout into second's stdin: both commands run through
// their (possibly different) adapters concurrently, matching a shell pipe's
// semantics rather than buffering first's entire output before starting
// second (spec.md §2 names "pipe" in the Engine's operation table; §4.1
// doesn't detail it further, so SPEC_FULL.md §4 specifies concurrent
// streaming). If first fails, second still runs against whatever partial
// output first produced before failing (mirrors `sh -c 'a | b'`, where b
// sees a truncated stream rather than never starting).
func (e *Engine) Pipe(ctx context.Context, first, second Command) (*PipeResult, error) {
	pr, pw := io.Pipe()

	first.Stdin = nil
	first.StdinBytes = nil
	second.Stdin = pr
	second.StdinBytes = nil

	type firstOutcome struct {
		result *Result
		err    error
	}
	firstCh := make(chan firstOutcome, 1)

	go func() {
		result, err := e.runCapturingStdout(ctx, first, pw)
		_ = pw.CloseWithError(err)
		firstCh <- firstOutcome{result, err}
	}()

	secondResult, secondErr := e.Run(ctx, second)
	fo := <-firstCh

	pr.Close()

	out := &PipeResult{First: fo.result, Second: secondResult}
	if fo.err != nil {
		return out, fo.err
	}
	if secondErr != nil {
		return out, secondErr
	}
	return out, nil
}

// runCapturingStdout runs cmd through the adapter's Execute directly and
// copies Result.Stdout into w once the command has completed; nothing is
// written to w while cmd runs. Adapters buffer into a BoundedBuffer rather
// than exposing a live io.Writer hook, so this is "concurrent but not truly
// streaming byte-for-byte" (adapter.StdioBinding models such a hook, but no
// adapter's Execute accepts it — see DESIGN.md).
func (e *Engine) runCapturingStdout(ctx context.Context, cmd Command, w io.Writer) (*Result, error) {
	resolved := e.stack.Resolve(cmd)
	a, err := e.Adapter(resolved.Adapter.Kind)
	if err != nil {
		return nil, err
	}
	result, runErr := a.Execute(ctx, resolved)
	if result != nil && len(result.Stdout) > 0 {
		if _, werr := w.Write(result.Stdout); werr != nil && runErr == nil {
			runErr = werr
		}
	}
	return result, runErr
}
