// Package tool implements the ToolManager: capability-gated, rate
// limited, timed-out, audited invocation of BaseTool implementations.
package tool

import "context"

// Tool is the contract every callable tool implements.
type Tool interface {
	Name() string
	Type() string
	Description() string
	RequiredPermissions() []string
	Timeout() int64 // milliseconds; 0 means no explicit timeout
	RateLimitPerMinute() int

	Validate(args map[string]any) ValidationResult
	Execute(ctx context.Context, args map[string]any) (Result, error)
	IsHealthy(ctx context.Context) bool
}

// ValidationResult is Tool.Validate's return value.
type ValidationResult struct {
	Valid   bool
	Reasons []string
}

// Result is one successful tool execution's output.
type Result struct {
	Output   string
	Metadata map[string]any
}
