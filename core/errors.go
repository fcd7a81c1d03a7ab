package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPlanParse is returned when the planning completion is not a JSON object.
	ErrPlanParse = errors.New("failed to parse plan")

	// ErrUnknownAction is returned when a plan names an action outside
	// respond, web_search and run_tool.
	ErrUnknownAction = errors.New("unknown action")
)

// ToolNotFoundError is returned when a capability name is not in the
// current snapshot or on disk.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Name)
}

// ToolExecutionError wraps a failure raised by a capability entry point.
type ToolExecutionError struct {
	Name string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Name, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// PersistenceError is returned when the durable mirror of the memory store
// rejects a write. The in-memory index is left untouched.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("memory persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// EmbeddingError is returned when the embedding provider fails or returns a
// vector of the wrong size.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// UpstreamError reports that an external service (completion, embedding,
// search, transcription) was unreachable or did not answer in time.
type UpstreamError struct {
	Service string
	Timeout bool
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s timed out: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may safely try the request again.
// Upstream failures never have side effects, so they always are.
func (e *UpstreamError) Retryable() bool {
	return true
}

// Upstream wraps err as an UpstreamError for service, marking context
// deadline expiry as a timeout. A nil err stays nil, and errors that are
// already UpstreamErrors are returned unchanged.
func Upstream(service string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{
		Service: service,
		Timeout: errors.Is(err, context.DeadlineExceeded),
		Err:     err,
	}
}

// IsRetryable reports whether err is an upstream failure worth retrying.
func IsRetryable(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Retryable()
}

// IsTimeout reports whether err is an upstream timeout.
func IsTimeout(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Timeout
}
