// SPDX-License-Identifier: MPL-2.0

package xec

import (
	"context"
	"testing"
)

func TestInterpolateQuotesByDefault(t *testing.T) {
	t.Parallel()

	parts := []string{"echo ", ""}
	values := []any{"hello; rm -rf /"}

	got := Interpolate(parts, values, false)
	if got != "echo 'hello; rm -rf /'" {
		t.Errorf("expected value to be quoted as a single word, got %q", got)
	}
}

func TestInterpolateRawSkipsQuoting(t *testing.T) {
	t.Parallel()

	parts := []string{"echo ", ""}
	values := []any{"$HOME"}

	got := Interpolate(parts, values, true)
	if got != "echo $HOME" {
		t.Errorf("expected raw interpolation to leave %q untouched, got %q", "$HOME", got)
	}
}

func TestRunTemplateQuotesUserInput(t *testing.T) {
	t.Parallel()

	e := New(Options{})
	defer e.Dispose()

	userInput := "world; echo injected"
	cmd := e.RunTemplate([]string{"echo ", ""}, userInput)

	result, err := e.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := result.StdoutString(); got != "world; echo injected\n" {
		t.Errorf("expected shell metacharacters to be echoed literally, got %q", got)
	}
}

func TestRawTemplateSetsRawSubstitution(t *testing.T) {
	t.Parallel()

	cmd := (&Engine{}).RawTemplate([]string{"echo ", ""}, "$HOME")
	if !cmd.RawSubstitution {
		t.Error("expected RawSubstitution to be true")
	}
	if cmd.Command != "echo $HOME" {
		t.Errorf("expected unquoted command, got %q", cmd.Command)
	}
}
