// Package aideerrors defines the error taxonomy shared by the chat service,
// the run orchestrator, and the HTTP layer.
package aideerrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for run lifecycle outcomes. The three terminal failure
// statuses of a run (failed, cancelled, expired) collapse into ErrRunFailed;
// callers get no finer distinction than "assistant failed to complete".
var (
	ErrRunFailed        = errors.New("assistant failed to complete the response")
	ErrNoAssistantReply = errors.New("run completed without an assistant reply")
	ErrRunTimeout       = errors.New("run did not reach a terminal status before the deadline")
)

// ValidationError reports malformed or oversized input, caught before any
// external call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// NewValidation builds a ValidationError for a named field.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports a missing local record (assistant, thread, message,
// user).
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
	}
	return e.Resource + " not found"
}

// NewNotFound builds a NotFoundError for a resource and lookup key.
func NewNotFound(resource, key string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key}
}

// ConflictError reports a uniqueness violation, e.g. a duplicate assistant or
// function name.
type ConflictError struct {
	Resource string
	Name     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Resource, e.Name)
}

// NewConflict builds a ConflictError.
func NewConflict(resource, name string) *ConflictError {
	return &ConflictError{Resource: resource, Name: name}
}

// RemoteError wraps any failure surfaced by the external assistants API.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("assistants api: %s: %s (status %d)", e.Op, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("assistants api: %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// ToolExecutionError reports a single tool call failing during dispatch. It is
// absorbed into a placeholder output per call, never propagated upward.
type ToolExecutionError struct {
	ToolCallID string
	Function   string
	Err        error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool call %s (%s): %v", e.ToolCallID, e.Function, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsRemote reports whether err originated from the external assistants API.
func IsRemote(err error) bool {
	var r *RemoteError
	return errors.As(err, &r)
}
