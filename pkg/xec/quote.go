// SPDX-License-Identifier: MPL-2.0

package xec

import (
	"fmt"

	"github.com/xec-sh/xec-core/internal/core"
	"mvdan.cc/sh/v3/syntax"
)

// quoteValue shell-quotes v for safe interpolation into a POSIX shell
// command line, using the same lexer the teacher's virtual runtime parses
// scripts with (mvdan.cc/sh/v3/syntax). Falls back to single-quoting by
// hand if the value itself isn't representable as a single shell word
// (syntax.Quote returns an error for a handful of pathological inputs,
// e.g. strings containing a NUL byte).
func quoteValue(v any) string {
	s := fmt.Sprint(v)
	quoted, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		return "'" + replaceAll(s, "'", `'\''`) + "'"
	}
	return quoted
}

func replaceAll(s, old, new string) string {
	if old == "" {
		return s
	}
	var out []byte
	for i := 0; i < len(s); {
		if i+len(old) <= len(s) && s[i:i+len(old)] == old {
			out = append(out, new...)
			i += len(old)
			continue
		}
		out = append(out, s[i])
		i++
	}
	return string(out)
}

// Interpolate builds a shell command string from literal template parts
// interleaved with values, quoting each value unless raw is true (spec.md
// §4.1: "raw(cmd) — same as run but skips shell-quoting of substituted
// values"). len(parts) must be len(values)+1, matching a tagged-template
// call shape: Interpolate([]string{"echo ", ""}, []any{userInput}, false).
func Interpolate(parts []string, values []any, raw bool) string {
	var out []byte
	for i, part := range parts {
		out = append(out, part...)
		if i < len(values) {
			if raw {
				out = append(out, fmt.Sprint(values[i])...)
			} else {
				out = append(out, quoteValue(values[i])...)
			}
		}
	}
	return string(out)
}

// RunTemplate builds a Command by quoting every value (Interpolate with
// raw=false). It does not run the Command; pass the result to Run.
func (e *Engine) RunTemplate(parts []string, values ...any) Command {
	cmd := core.NewCommand(Interpolate(parts, values, false))
	return cmd
}

// RawTemplate is like RunTemplate but skips quoting (Interpolate with
// raw=true), matching Engine.Raw's contract.
func (e *Engine) RawTemplate(parts []string, values ...any) Command {
	cmd := core.NewCommand(Interpolate(parts, values, true))
	cmd.RawSubstitution = true
	return cmd
}
