// Package errs defines the sentinel error kinds shared across the
// runtime, checked with errors.Is at call sites and wrapped with
// fmt.Errorf("...: %w", ...) for context.
package errs

import "errors"

var (
	// ErrPermissionDenied covers sender/receiver/tool/memory ACL checks.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrRateLimited covers IPC sender and tool rate-limit exhaustion.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrNotFound covers agent / tool / model / workflow / memory lookups.
	ErrNotFound = errors.New("not found")
	// ErrValidationFailed covers tool argument validation.
	ErrValidationFailed = errors.New("validation failed")
	// ErrTimeout covers handler, tool, and model generation timeouts.
	ErrTimeout = errors.New("timeout")
	// ErrCancelled covers explicit workflow cancellation.
	ErrCancelled = errors.New("cancelled")
	// ErrExecution covers a handler/tool/model raising a non-timeout error.
	ErrExecution = errors.New("execution error")
	// ErrDuplicate covers registering an already-present id.
	ErrDuplicate = errors.New("duplicate")
)
