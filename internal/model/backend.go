// Package model implements the ModelManager: named backend registry,
// routing-rule-based selection with fallback, and health-aware
// generation with running stats. Concrete wire protocols for specific
// model providers are out of scope; this package ships the manager and
// a couple of stub backends.
package model

import "context"

// GenerationOptions carries a generation request's parameters.
type GenerationOptions struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
	Seed        int64
}

// GenerationResult is one backend's successful reply.
type GenerationResult struct {
	Content    string
	Model      string
	TokensUsed int
	Metadata   map[string]any
}

// Backend is one ModelManager-managed model implementation.
type Backend interface {
	Name() string
	Type() string // "local", "ollama", or a remote wire protocol name
	Generate(ctx context.Context, opts GenerationOptions) (GenerationResult, error)
	IsHealthy(ctx context.Context) bool
	Capabilities() []string
}
