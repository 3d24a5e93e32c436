package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/agentrt/runtime/internal/container"
)

// Runner is the narrow surface ContainerExecTool needs from
// internal/container.Sandbox.
type Runner interface {
	RunCommandWithTimeout(ctx context.Context, image string, cmd []string, env map[string]string, timeout time.Duration) (string, error)
}

// ContainerExecTool runs a shell command inside a disposable sandboxed
// container. It is the one concrete tool this runtime ships; other
// tools are expected to be registered in code by the embedding
// application.
type ContainerExecTool struct {
	Base
	Sandbox Runner
	Image   string
}

// NewContainerExecTool constructs a ContainerExecTool bound to sandbox,
// defaulting to image when a call omits one.
func NewContainerExecTool(sandbox *container.Sandbox, image string, timeoutMs int64, rateLimitPerMinute int) *ContainerExecTool {
	return &ContainerExecTool{
		Base: Base{
			NameValue:                "container_exec",
			TypeValue:                "container_exec",
			DescriptionValue:         "Runs a shell command inside a disposable sandboxed container.",
			RequiredPermissionsValue: []string{"execute"},
			TimeoutMs:                timeoutMs,
			RateLimitPerMinuteValue:  rateLimitPerMinute,
		},
		Sandbox: sandbox,
		Image:   image,
	}
}

func (t *ContainerExecTool) Validate(args map[string]any) ValidationResult {
	raw, ok := args["cmd"]
	if !ok {
		return ValidationResult{Valid: false, Reasons: []string{"missing required arg \"cmd\""}}
	}
	switch v := raw.(type) {
	case []string:
		if len(v) == 0 {
			return ValidationResult{Valid: false, Reasons: []string{"\"cmd\" must not be empty"}}
		}
	case []any:
		if len(v) == 0 {
			return ValidationResult{Valid: false, Reasons: []string{"\"cmd\" must not be empty"}}
		}
	default:
		return ValidationResult{Valid: false, Reasons: []string{"\"cmd\" must be a string array"}}
	}
	return ValidationResult{Valid: true}
}

func (t *ContainerExecTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	cmd, err := toStringSlice(args["cmd"])
	if err != nil {
		return Result{}, err
	}
	env, _ := args["env"].(map[string]string)

	timeout := time.Duration(t.TimeoutMs) * time.Millisecond
	output, err := t.Sandbox.RunCommandWithTimeout(ctx, t.Image, cmd, env, timeout)
	if err != nil {
		return Result{Output: output}, err
	}
	return Result{Output: output}, nil
}

func (t *ContainerExecTool) IsHealthy(ctx context.Context) bool {
	return t.Sandbox != nil
}

func toStringSlice(v any) ([]string, error) {
	switch cmd := v.(type) {
	case []string:
		return cmd, nil
	case []any:
		out := make([]string, len(cmd))
		for i, c := range cmd {
			s, ok := c.(string)
			if !ok {
				return nil, fmt.Errorf("tool: cmd[%d] is not a string", i)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("tool: cmd must be a string array")
	}
}
