// SPDX-License-Identifier: MPL-2.0

package xec

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/xec-sh/xec-core/internal/core"
)

// ParallelOptions configures Engine.Parallel (spec.md §4.8).
type ParallelOptions struct {
	// MaxConcurrency bounds the fixed-size worker pool; <=0 means
	// runtime.NumCPU().
	MaxConcurrency int
	// StopOnError cancels in-flight work on the first failure. Already
	// dispatched work is allowed to finish its current step rather than
	// being killed mid-flight.
	StopOnError bool
}

// Outcome pairs one Command's position with its Result/error, used by
// Settled and internally by All.
type Outcome struct {
	Index  int
	Result *Result
	Err    error
}

// ParallelResult is All's return shape (spec.md §4.8 "all").
type ParallelResult struct {
	Succeeded  []*Result
	Failed     []Outcome
	Results    []*Result // position-ordered; a failed entry holds whatever Result its run returned, possibly nil
	DurationMs int64
}

func (e *Engine) dispatch(ctx context.Context, cmds []Command, opts ParallelOptions) []Outcome {
	n := len(cmds)
	outcomes := make([]Outcome, n)
	if n == 0 {
		return outcomes
	}

	workers := opts.MaxConcurrency
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				result, err := e.Run(runCtx, cmds[i])
				outcomes[i] = Outcome{Index: i, Result: result, Err: err}
				if err != nil && opts.StopOnError {
					cancel()
				}
			}
		}()
	}

	sent := make([]bool, n)
feed:
	for i := 0; i < n; i++ {
		select {
		case jobs <- i:
			sent[i] = true
		case <-runCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	for i, ok := range sent {
		if !ok {
			outcomes[i] = Outcome{Index: i, Err: &core.CancellationError{}}
		}
	}

	return outcomes
}

// All runs every Command with bounded concurrency and returns a
// position-ordered ParallelResult (spec.md §4.8 "all").
func (e *Engine) All(ctx context.Context, cmds []Command, opts ParallelOptions) (*ParallelResult, error) {
	start := time.Now()
	outcomes := e.dispatch(ctx, cmds, opts)

	pr := &ParallelResult{Results: make([]*Result, len(cmds))}
	var firstErr error
	for _, o := range outcomes {
		pr.Results[o.Index] = o.Result
		if o.Err != nil {
			pr.Failed = append(pr.Failed, o)
			if firstErr == nil {
				firstErr = o.Err
			}
		} else {
			pr.Succeeded = append(pr.Succeeded, o.Result)
		}
	}
	pr.DurationMs = time.Since(start).Milliseconds()

	if opts.StopOnError && firstErr != nil {
		return pr, firstErr
	}
	return pr, nil
}

// Settled never fails; it returns every outcome regardless of error (spec.md
// §4.8 "settled").
func (e *Engine) Settled(ctx context.Context, cmds []Command, opts ParallelOptions) []Outcome {
	return e.dispatch(ctx, cmds, opts)
}

// Race resolves with the first completion, success or failure (spec.md §4.8
// "race").
func (e *Engine) Race(ctx context.Context, cmds []Command) (*Result, error) {
	if len(cmds) == 0 {
		return nil, &core.ValidationError{Reason: "race requires at least one command"}
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		result *Result
		err    error
	}
	ch := make(chan outcome, len(cmds))
	for _, cmd := range cmds {
		cmd := cmd
		go func() {
			r, err := e.Run(raceCtx, cmd)
			select {
			case ch <- outcome{r, err}:
			case <-raceCtx.Done():
			}
		}()
	}

	first := <-ch
	return first.result, first.err
}

// Map applies fn(item, i) to produce a Command per item, then delegates to
// All (spec.md §4.8 "map").
func (e *Engine) Map(ctx context.Context, items []any, fn func(item any, i int) Command, opts ParallelOptions) (*ParallelResult, error) {
	cmds := make([]Command, len(items))
	for i, item := range items {
		cmds[i] = fn(item, i)
	}
	return e.All(ctx, cmds, opts)
}

// Filter keeps items whose corresponding command exits zero (spec.md §4.8
// "filter").
func (e *Engine) Filter(ctx context.Context, items []any, fn func(item any, i int) Command, opts ParallelOptions) ([]any, error) {
	cmds := make([]Command, len(items))
	for i, item := range items {
		cmds[i] = fn(item, i)
	}
	outcomes := e.dispatch(ctx, cmds, opts)

	kept := make([]any, 0, len(items))
	for _, o := range outcomes {
		if o.Err == nil && o.Result != nil && o.Result.ExitCode == 0 {
			kept = append(kept, items[o.Index])
		}
	}
	return kept, nil
}

// Some resolves true on first success, false once every command has failed
// (spec.md §4.8 "some").
func (e *Engine) Some(ctx context.Context, cmds []Command, opts ParallelOptions) bool {
	outcomes := e.dispatch(ctx, cmds, opts)
	for _, o := range outcomes {
		if o.Err == nil && o.Result != nil && o.Result.ExitCode == 0 {
			return true
		}
	}
	return false
}

// Every resolves true only if every command succeeds (spec.md §4.8 "every").
func (e *Engine) Every(ctx context.Context, cmds []Command, opts ParallelOptions) bool {
	outcomes := e.dispatch(ctx, cmds, opts)
	for _, o := range outcomes {
		if o.Err != nil || o.Result == nil || o.Result.ExitCode != 0 {
			return false
		}
	}
	return true
}
