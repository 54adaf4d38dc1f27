// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"fmt"
	"slices"
	"strings"
)

type (
	// ActionableError is an error with context for user-facing error messages.
	// It reports what operation failed, what resource was involved (a host,
	// container, pod, or command string), and suggestions for fixing it.
	ActionableError struct {
		operation   string
		resource    string
		suggestions []string
		cause       error
	}

	// ErrorContext is a builder for constructing ActionableError instances.
	//
	//	err := issue.NewErrorContext().
	//		WithOperation("connect over ssh").
	//		WithResource("ubuntu-apt:22").
	//		WithSuggestion("verify the host is reachable").
	//		Wrap(cause)
	ErrorContext struct {
		operation   string
		resource    string
		suggestions []string
	}
)

// NewErrorContext creates a new ErrorContext builder.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// WithOperation sets the operation being attempted.
func (c *ErrorContext) WithOperation(operation string) *ErrorContext {
	c.operation = operation
	return c
}

// WithResource sets the resource involved (host, container, pod, file...).
func (c *ErrorContext) WithResource(resource string) *ErrorContext {
	c.resource = resource
	return c
}

// WithSuggestion appends a fix suggestion.
func (c *ErrorContext) WithSuggestion(suggestion string) *ErrorContext {
	c.suggestions = append(c.suggestions, suggestion)
	return c
}

// Wrap attaches the underlying cause and returns a ready-to-use ActionableError.
func (c *ErrorContext) Wrap(cause error) *ActionableError {
	return &ActionableError{
		operation:   c.operation,
		resource:    c.resource,
		suggestions: slices.Clone(c.suggestions),
		cause:       cause,
	}
}

// Operation returns the operation that was being attempted.
func (e *ActionableError) Operation() string { return e.operation }

// Resource returns the resource involved (may be empty).
func (e *ActionableError) Resource() string { return e.resource }

// Suggestions returns a copy of the fix suggestions (may be empty).
func (e *ActionableError) Suggestions() []string { return slices.Clone(e.suggestions) }

// Cause returns the underlying error (may be nil).
func (e *ActionableError) Cause() error { return e.cause }

// Unwrap enables errors.Is/As to reach the underlying cause.
func (e *ActionableError) Unwrap() error { return e.cause }

// Error implements the error interface.
func (e *ActionableError) Error() string {
	var msg strings.Builder
	msg.WriteString("failed to ")
	msg.WriteString(e.operation)
	if e.resource != "" {
		msg.WriteString(": ")
		msg.WriteString(e.resource)
	}
	if e.cause != nil {
		msg.WriteString(": ")
		msg.WriteString(e.cause.Error())
	}
	if len(e.suggestions) > 0 {
		msg.WriteString(fmt.Sprintf(" (%d suggestion(s) available)", len(e.suggestions)))
	}
	return msg.String()
}
