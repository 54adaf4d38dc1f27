// SPDX-License-Identifier: MPL-2.0

package xec

import (
	"context"

	"github.com/xec-sh/xec-core/internal/core"
)

// scopeKey is the context.Context key under which Within stores an Overlay
// stack, giving dynamic (call-tree) scoping as an alternative to With's
// lexical (clone-the-engine) scoping — both compose the same way (spec.md
// §4.1 "within(opts, fn) runs fn under a dynamic-scoped context").
type scopeKey struct{}

// Within runs fn with overlay pushed onto ctx's scope stack; RunScoped reads
// it back out. Nesting Within calls composes overlays in call order, same
// last-writer-wins/merge/concat rules as With.
func Within(ctx context.Context, overlay Overlay, fn func(context.Context) error) error {
	stack, _ := ctx.Value(scopeKey{}).(core.Stack)
	next := stack.Push(overlay)
	return fn(context.WithValue(ctx, scopeKey{}, next))
}

// scopeFromContext returns the Overlay stack previously pushed by Within
// calls along ctx's ancestry, outermost first.
func scopeFromContext(ctx context.Context) core.Stack {
	stack, _ := ctx.Value(scopeKey{}).(core.Stack)
	return stack
}

// RunScoped is like Engine.Run but additionally applies any Within-pushed
// dynamic scope found on ctx, composed outermost-first, with-scope first
// and then dynamic scope on top (so a Within call nested inside a With-ed
// engine's call can still override it, matching last-writer-wins).
func (e *Engine) RunScoped(ctx context.Context, cmd Command) (*Result, error) {
	dyn := scopeFromContext(ctx)
	if len(dyn) == 0 {
		return e.Run(ctx, cmd)
	}

	clone := &Engine{
		registry: e.registry,
		bus:      e.bus,
		logger:   e.logger,
		stack:    append(append(core.Stack(nil), e.stack...), dyn...),
	}
	return clone.Run(ctx, cmd)
}
