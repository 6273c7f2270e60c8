package config

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config defines the global application configuration structure.
// This structure maps directly to the config.json file and holds
// business-level settings like provider credentials and the agent persona.
type Config struct {
	// LLM holds the configuration for the LLM provider groups in raw JSON.
	// Parsed by llm.NewFromConfig against the registered provider factories.
	LLM jsoniter.RawMessage `json:"llm"`
	// Search selects and configures the web-search provider used by the
	// agent's tool gateway.
	Search SearchConfig `json:"search"`
	// Channels contains a map of optional channel identifiers (e.g.
	// "telegram") to their specific configuration payloads in raw JSON.
	Channels map[string]jsoniter.RawMessage `json:"channels"`
	// SystemPrompt is the persona/instruction string sent to the model
	// as the initial system message in every run. Empty selects the
	// built-in agent prompt.
	SystemPrompt string `json:"system_prompt"`
}

// SearchConfig selects the external search provider.
type SearchConfig struct {
	// Provider is "duckduckgo" (no key required) or "tavily".
	Provider string `json:"provider"`
	// APIKey authenticates against the provider, if it needs one.
	APIKey string `json:"api_key,omitempty"`
}

// Validate ensures the configuration structure contains all mandatory fields.
// It acts as a primary guard before the system proceeds to initialization.
func (c *Config) Validate() error {
	if len(c.LLM) == 0 {
		return fmt.Errorf("mandatory 'llm' configuration is missing or empty")
	}
	return nil
}

// ApplyEnv fills credentials left empty in config.json from the process
// environment, so secrets can live in .env instead of the checked-in config.
func (c *Config) ApplyEnv() {
	if c.Search.APIKey == "" {
		c.Search.APIKey = os.Getenv("TAVILY_API_KEY")
	}
}

// SystemConfig defines engine-level technical parameters.
// These settings are usually stored in system.json and control the
// performance, reliability, and technical behavior of the agent runtime.
type SystemConfig struct {
	// MaxSearchesPerRun caps the number of tool invocations a single
	// agent run may issue before it is forced to answer.
	MaxSearchesPerRun int `json:"max_searches_per_run"`
	// MaxIterations caps reasoning+acting cycles per run, bounding
	// worst-case latency even when the model keeps thinking without
	// acting or answering.
	MaxIterations int `json:"max_iterations"`
	// MemoryWindow is the number of trailing turns handed to the
	// reasoning loop as conversational context.
	MemoryWindow int `json:"memory_window"`
	// StorageDir is the directory holding persisted conversation files.
	StorageDir string `json:"storage_dir"`
	// LLMTimeoutMs is the hard cutoff time (in milliseconds) for one
	// model invocation. The context will be cancelled if exceeded.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// SearchTimeoutMs bounds a single search call through the gateway.
	SearchTimeoutMs int `json:"search_timeout_ms"`
	// MaxRetries is the number of times the system will attempt to
	// recover from a transient LLM or network error before giving up.
	MaxRetries int `json:"max_retries"`
	// RetryDelayMs is the duration to wait (in milliseconds) between
	// consecutive retry attempts.
	RetryDelayMs int `json:"retry_delay_ms"`
	// InternalChannelBuffer defines the size of the internal Go channels
	// used for buffering stream events to prevent production blocking.
	InternalChannelBuffer int `json:"internal_channel_buffer"`
	// HTTPPort is the listen port of the consumer-facing API.
	HTTPPort int `json:"http_port"`
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
}

// DefaultSystemConfig returns a SystemConfig pointer initialized with
// hardcoded safe default values. This is used as a fallback when the
// system.json file is missing or corrupt, ensuring the service can
// always start.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MaxSearchesPerRun:     2,
		MaxIterations:         5,
		MemoryWindow:          10,
		StorageDir:            "data/memory",
		LLMTimeoutMs:          120000,
		SearchTimeoutMs:       15000,
		MaxRetries:            3,
		RetryDelayMs:          500,
		InternalChannelBuffer: 100,
		HTTPPort:              8080,
		LogLevel:              "info",
	}
}

// Load reads and parses the JSON configuration files from the current working directory.
// It first attempts to load 'config.json' (app config). If this file is missing, it returns an error.
// Then it calls LoadSystemConfig to load 'system.json'.
// Returns pointers to the loaded Config and SystemConfig, or an error if the mandatory app config fails.
func Load() (*Config, *SystemConfig, error) {
	appPath := "config.json"
	if _, err := os.Stat(appPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file '%s' not found. please create one", appPath)
	}

	appFile, err := os.ReadFile(appPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(appFile, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	sysCfg := LoadSystemConfig("system.json")

	return &cfg, sysCfg, nil
}

// LoadSystemConfig attempts to load system settings, returns defaults if it fails.
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg // File not found, use defaults
	}

	if err := json.Unmarshal(file, cfg); err != nil {
		return cfg // Parse failed, use defaults
	}

	return cfg
}
