package tool

import "context"

// Base provides the common declarative fields every Tool embeds;
// concrete tools implement Validate/Execute/IsHealthy and promote the
// rest.
type Base struct {
	NameValue                string
	TypeValue                string
	DescriptionValue         string
	RequiredPermissionsValue []string
	TimeoutMs                int64
	RateLimitPerMinuteValue  int
}

func (b Base) Name() string                  { return b.NameValue }
func (b Base) Type() string                  { return b.TypeValue }
func (b Base) Description() string           { return b.DescriptionValue }
func (b Base) RequiredPermissions() []string { return b.RequiredPermissionsValue }
func (b Base) Timeout() int64                { return b.TimeoutMs }
func (b Base) RateLimitPerMinute() int       { return b.RateLimitPerMinuteValue }

// FuncTool adapts a plain function into a Tool for simple, stateless
// tools that need no custom validation or health check.
type FuncTool struct {
	Base
	ValidateFunc func(args map[string]any) ValidationResult
	ExecuteFunc  func(ctx context.Context, args map[string]any) (Result, error)
}

func (f FuncTool) Validate(args map[string]any) ValidationResult {
	if f.ValidateFunc == nil {
		return ValidationResult{Valid: true}
	}
	return f.ValidateFunc(args)
}

func (f FuncTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	return f.ExecuteFunc(ctx, args)
}

func (f FuncTool) IsHealthy(ctx context.Context) bool { return true }
