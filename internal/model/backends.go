package model

import (
	"context"
	"fmt"
)

// LocalBackend is a stub ModelBackend representing an in-process or
// locally-hosted model (e.g. an Ollama-style runtime). It has no wire
// protocol of its own; embedding applications are expected to replace
// Generate with a real implementation.
type LocalBackend struct {
	NameValue  string
	TypeValue  string // "local" or "ollama"
	ModelValue string
	GenerateFunc func(ctx context.Context, opts GenerationOptions) (GenerationResult, error)
	HealthFunc   func(ctx context.Context) bool
	CapabilitiesValue []string
}

func (b *LocalBackend) Name() string { return b.NameValue }
func (b *LocalBackend) Type() string { return b.TypeValue }
func (b *LocalBackend) Capabilities() []string { return b.CapabilitiesValue }

func (b *LocalBackend) Generate(ctx context.Context, opts GenerationOptions) (GenerationResult, error) {
	if b.GenerateFunc != nil {
		return b.GenerateFunc(ctx, opts)
	}
	return GenerationResult{}, fmt.Errorf("model: backend %q has no generate implementation wired", b.NameValue)
}

func (b *LocalBackend) IsHealthy(ctx context.Context) bool {
	if b.HealthFunc != nil {
		return b.HealthFunc(ctx)
	}
	return true
}

// SecretResolver resolves a named credential, as internal/vault-backed
// secret storage does.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, name string) (string, error)
}

// RemoteBackend is a stub ModelBackend for a credentialed remote
// endpoint. It resolves its API key through a SecretResolver (backed by
// internal/vault + internal/store), but ships no concrete wire
// protocol.
type RemoteBackend struct {
	NameValue         string
	ModelValue        string
	Endpoint          string
	APIKeySecretName  string
	Resolver          SecretResolver
	GenerateFunc      func(ctx context.Context, opts GenerationOptions, apiKey string) (GenerationResult, error)
	HealthFunc        func(ctx context.Context) bool
	CapabilitiesValue []string
}

func (b *RemoteBackend) Name() string          { return b.NameValue }
func (b *RemoteBackend) Type() string          { return "remote" }
func (b *RemoteBackend) Capabilities() []string { return b.CapabilitiesValue }

func (b *RemoteBackend) Generate(ctx context.Context, opts GenerationOptions) (GenerationResult, error) {
	apiKey := ""
	if b.Resolver != nil && b.APIKeySecretName != "" {
		key, err := b.Resolver.ResolveSecret(ctx, b.APIKeySecretName)
		if err != nil {
			return GenerationResult{}, fmt.Errorf("model: resolve credential for %q: %w", b.NameValue, err)
		}
		apiKey = key
	}
	if b.GenerateFunc != nil {
		return b.GenerateFunc(ctx, opts, apiKey)
	}
	return GenerationResult{}, fmt.Errorf("model: backend %q has no generate implementation wired", b.NameValue)
}

func (b *RemoteBackend) IsHealthy(ctx context.Context) bool {
	if b.HealthFunc != nil {
		return b.HealthFunc(ctx)
	}
	return b.Resolver != nil
}
