// Package config loads the runtime's YAML configuration: component
// defaults plus the static agent/tool/model-backend definitions that
// seed the kernel at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Agents       map[string]AgentConfig `yaml:"agents"`
	Tools        map[string]ToolConfig  `yaml:"tools"`
	ModelBackends []ModelBackendConfig  `yaml:"model_backends"`
	IPC          IPCConfig              `yaml:"ipc"`
	Memory       MemoryConfig           `yaml:"memory"`
	Audit        AuditConfig            `yaml:"audit"`
	Orchestrator OrchestratorConfig     `yaml:"orchestrator"`
	NATS         NATSConfig             `yaml:"nats"`
	Edge         EdgeConfig             `yaml:"edge"`
	Scheduler    SchedulerConfig        `yaml:"scheduler"`
	Store        StoreConfig            `yaml:"store"`
	VaultPassphrase string              `yaml:"vault_passphrase"`
}

// AgentConfig statically declares one agent's registration: its name,
// model hint, tags, permissions, capabilities, and granted tools. The handler itself
// is wired in code (concrete agent prompt templates are out of scope).
type AgentConfig struct {
	Name        string   `yaml:"name"`
	Model       string   `yaml:"model"`
	Tags        []string `yaml:"tags"`
	Permissions []string `yaml:"permissions"`
	Capabilities []string `yaml:"capabilities"`
	AllowedTools []string `yaml:"allowed_tools"`
}

// ToolConfig declares one tool's capability gate, rate limit, and
// timeout. "container_exec" names the one concrete tool this runtime
// ships (internal/tool.ContainerExecTool); other names are expected to
// be registered in code.
type ToolConfig struct {
	Type                string   `yaml:"type"`
	Description         string   `yaml:"description"`
	RequiredPermissions []string `yaml:"required_permissions"`
	TimeoutMs           int      `yaml:"timeout_ms"`
	RateLimitPerMinute  int      `yaml:"rate_limit_per_minute"`
	Image               string   `yaml:"image,omitempty"`
}

// ModelBackendConfig declares one ModelManager backend.
type ModelBackendConfig struct {
	Name         string `yaml:"name"`
	Type         string `yaml:"type"` // "local", "ollama", or a remote wire protocol
	Model        string `yaml:"model"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	APIKeySecret string `yaml:"api_key_secret,omitempty"`
	IsDefault    bool   `yaml:"default"`
}

// IPCConfig controls IPCManager sender rate limiting.
type IPCConfig struct {
	MaxPerWindow int `yaml:"max_per_window"`
	WindowMs     int `yaml:"window_ms"`
}

// MemoryConfig controls MemoryManager/AgentMemory behavior.
type MemoryConfig struct {
	EnableVectorSearch bool `yaml:"enable_vector_search"`
	MaxShortTermSize   int  `yaml:"max_short_term_size"`
}

// AuditConfig controls the AuditLogger ring buffer and persistence.
type AuditConfig struct {
	MaxEvents        int  `yaml:"max_events"`
	PersistToStore   bool `yaml:"persist_to_store"`
}

// OrchestratorConfig controls default atomic-node timeout and retry
// backoff.
type OrchestratorConfig struct {
	AtomicTimeoutMs  int `yaml:"atomic_timeout_ms"`
	RetryBaseMs      int `yaml:"retry_base_ms"`
	RetryCapMs       int `yaml:"retry_cap_ms"`
}

// NATSConfig controls the embedded MessageBus transport.
type NATSConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

// EdgeConfig controls the HTTP+websocket ingress.
type EdgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// SchedulerConfig controls workflowsched's poll cadence.
type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// StoreConfig controls the sqlite-backed Store sink.
type StoreConfig struct {
	Path string `yaml:"path"`
}

const (
	DefaultStorePath = "data/runtime.db"
	envConfigPath    = "AGENTRT_CONFIG"
)

func defaults() Config {
	return Config{
		IPC: IPCConfig{
			MaxPerWindow: 100,
			WindowMs:     60_000,
		},
		Memory: MemoryConfig{
			EnableVectorSearch: false,
			MaxShortTermSize:   50,
		},
		Audit: AuditConfig{
			MaxEvents:      10_000,
			PersistToStore: true,
		},
		Orchestrator: OrchestratorConfig{
			AtomicTimeoutMs: 30_000,
			RetryBaseMs:     200,
			RetryCapMs:      5_000,
		},
		NATS: NATSConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
		Edge: EdgeConfig{
			Enabled: true,
			Addr:    ":8080",
		},
		Scheduler: SchedulerConfig{
			PollInterval: 30 * time.Second,
		},
		Store: StoreConfig{
			Path: DefaultStorePath,
		},
	}
}

// Load reads config from the path named by AGENTRT_CONFIG (defaulting to
// config/runtime.yaml), falling back silently to defaults when the file
// is absent, then applies environment variable overrides.
func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv(envConfigPath)
	if path == "" {
		path = "config/runtime.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	hasDefault := false
	for _, b := range cfg.ModelBackends {
		if b.IsDefault {
			hasDefault = true
			break
		}
	}
	if len(cfg.ModelBackends) > 0 && !hasDefault {
		return fmt.Errorf("config: at least one model backend must be marked default")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AGENTRT_VAULT_PASSPHRASE"); v != "" {
		cfg.VaultPassphrase = v
	}
	if v := os.Getenv("AGENTRT_EDGE_ADDR"); v != "" {
		cfg.Edge.Addr = v
	}
	if v := os.Getenv("AGENTRT_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("AGENTRT_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
}
