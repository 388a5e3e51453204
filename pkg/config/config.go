// Package config loads the service configuration: a YAML file with
// environment overrides and baked-in defaults, plus an encrypted secrets
// file for credentials. Durations are expressed as whole seconds in YAML.
//
// Credentials never come from the YAML file. They resolve through the
// secrets store (see secrets.go): decrypted secrets file first, environment
// second.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ColtMercer/nautobot-mcp/pkg/llm"
)

// Environment variable names shared with the secrets store.
const (
	EnvMCPAPIKey     = "MCP_API_KEY"
	EnvNautobotToken = "NAUTOBOT_TOKEN"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvAnthropicKey  = "ANTHROPIC_API_KEY"
	EnvGeminiKey     = "GEMINI_API_KEY"
)

// Planner provider selector for the rule-based planner. The other selectors
// are the llm package's provider names.
const ProviderHeuristic = "heuristic"

// Server configures the capability provider daemon.
type Server struct {
	Addr   string `yaml:"addr"`
	APIKey string `yaml:"-"`
}

// Nautobot configures the GraphQL inventory client.
type Nautobot struct {
	URL   string `yaml:"url"`
	Token string `yaml:"-"`
}

// Orchestrator bounds a single turn.
type Orchestrator struct {
	MaxRounds          int `yaml:"max_rounds"`
	TurnTimeoutSeconds int `yaml:"turn_timeout_seconds"`
}

// TurnTimeout returns the turn deadline as a duration.
func (o Orchestrator) TurnTimeout() time.Duration {
	return time.Duration(o.TurnTimeoutSeconds) * time.Second
}

// Executor bounds per-round capability dispatch.
type Executor struct {
	MaxConcurrentCalls int `yaml:"max_concurrent_calls"`
	CallTimeoutSeconds int `yaml:"call_timeout_seconds"`
}

// CallTimeout returns the per-call timeout as a duration.
func (e Executor) CallTimeout() time.Duration {
	return time.Duration(e.CallTimeoutSeconds) * time.Second
}

// Planner selects and tunes the planning policy. Provider is either
// ProviderHeuristic or one of the llm package's provider names; hosted
// providers need an API key resolved through the secrets store.
type Planner struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Host        string  `yaml:"host"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
	APIKey      string  `yaml:"-"`
}

// Chat configures the chat orchestrator daemon.
type Chat struct {
	Addr             string `yaml:"addr"`
	MCPURL           string `yaml:"mcp_url"`
	DBPath           string `yaml:"db_path"`
	ExportDir        string `yaml:"export_dir"`
	EventLogDir      string `yaml:"event_log_dir"`
	SecretsPath      string `yaml:"secrets_path"`
	MaxMessageChars  int    `yaml:"max_message_chars"`
	ScannerEnabled   bool   `yaml:"scanner_enabled"`
	ScannerTimeoutMs int    `yaml:"scanner_timeout_ms"`
}

// Config is the full configuration for both daemons.
type Config struct {
	Server       Server       `yaml:"server"`
	Nautobot     Nautobot     `yaml:"nautobot"`
	Orchestrator Orchestrator `yaml:"orchestrator"`
	Executor     Executor     `yaml:"executor"`
	Planner      Planner      `yaml:"planner"`
	Chat         Chat         `yaml:"chat"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr: ":7000",
		},
		Nautobot: Nautobot{
			URL: "http://nautobot:8080",
		},
		Orchestrator: Orchestrator{
			MaxRounds:          6,
			TurnTimeoutSeconds: 120,
		},
		Executor: Executor{
			MaxConcurrentCalls: 4,
			CallTimeoutSeconds: 10,
		},
		Planner: Planner{
			Provider:    llm.ProviderOpenAI,
			Model:       "gpt-4o-mini",
			MaxTokens:   1024,
			Temperature: 0.2,
		},
		Chat: Chat{
			Addr:             ":8501",
			MCPURL:           "http://localhost:7000",
			DBPath:           "nautobot-chat.db",
			ExportDir:        "exports",
			EventLogDir:      "logs/events",
			SecretsPath:      "secrets.json.enc",
			MaxMessageChars:  4096,
			ScannerEnabled:   true,
			ScannerTimeoutMs: 100,
		},
	}
}

// Load reads the YAML file at path when it exists, applies environment
// overrides, and validates. A missing file is not an error; defaults serve.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Defaults only.
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv layers plain environment overrides on top of the file values.
// Credentials are not handled here; see ResolveSecrets.
func (c *Config) applyEnv() {
	if v := os.Getenv("MCP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("NAUTOBOT_URL"); v != "" {
		c.Nautobot.URL = v
	}
	if v := os.Getenv("CHAT_ADDR"); v != "" {
		c.Chat.Addr = v
	}
	if v := os.Getenv("MCP_URL"); v != "" {
		c.Chat.MCPURL = v
	}
	if v := os.Getenv("PLANNER_PROVIDER"); v != "" {
		c.Planner.Provider = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		c.Planner.Model = v
	} else if v := os.Getenv("DEFAULT_MODEL"); v != "" {
		c.Planner.Model = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.Planner.Host = v
	}
}

// ResolveSecrets fills credential fields from the secrets store. Missing
// credentials leave fields empty; callers decide whether that is fatal (the
// heuristic planner needs no key, the server falls back to its dev key).
func (c *Config) ResolveSecrets() {
	if c.Server.APIKey == "" {
		c.Server.APIKey, _ = GetSecret(EnvMCPAPIKey)
	}
	if c.Nautobot.Token == "" {
		c.Nautobot.Token, _ = GetSecret(EnvNautobotToken)
	}
	if c.Planner.APIKey == "" {
		if name := plannerKeyName(c.Planner.Provider); name != "" {
			c.Planner.APIKey, _ = GetSecret(name)
		}
	}
}

// plannerKeyName maps a planner provider to its credential name. Providers
// without credentials map to "".
func plannerKeyName(provider string) string {
	switch provider {
	case llm.ProviderOpenAI:
		return EnvOpenAIKey
	case llm.ProviderAnthropic:
		return EnvAnthropicKey
	case llm.ProviderGoogle:
		return EnvGeminiKey
	default:
		return ""
	}
}

// Validate rejects configurations the daemons cannot run with.
func (c *Config) Validate() error {
	if c.Orchestrator.MaxRounds <= 0 {
		return fmt.Errorf("orchestrator.max_rounds must be positive, got %d", c.Orchestrator.MaxRounds)
	}
	if c.Orchestrator.TurnTimeoutSeconds <= 0 {
		return fmt.Errorf("orchestrator.turn_timeout_seconds must be positive, got %d", c.Orchestrator.TurnTimeoutSeconds)
	}
	if c.Executor.MaxConcurrentCalls <= 0 {
		return fmt.Errorf("executor.max_concurrent_calls must be positive, got %d", c.Executor.MaxConcurrentCalls)
	}
	if c.Executor.CallTimeoutSeconds <= 0 {
		return fmt.Errorf("executor.call_timeout_seconds must be positive, got %d", c.Executor.CallTimeoutSeconds)
	}
	if c.Planner.Provider == "" {
		return fmt.Errorf("planner.provider cannot be empty")
	}
	switch c.Planner.Provider {
	case ProviderHeuristic, llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderOllama, llm.ProviderGoogle:
	default:
		return fmt.Errorf("planner.provider %q is not supported", c.Planner.Provider)
	}
	if c.Planner.Provider != ProviderHeuristic && c.Planner.Model == "" {
		return fmt.Errorf("planner.model cannot be empty for provider %s", c.Planner.Provider)
	}
	if c.Chat.MaxMessageChars <= 0 {
		return fmt.Errorf("chat.max_message_chars must be positive, got %d", c.Chat.MaxMessageChars)
	}
	if c.Chat.ScannerTimeoutMs < 0 {
		return fmt.Errorf("chat.scanner_timeout_ms cannot be negative, got %d", c.Chat.ScannerTimeoutMs)
	}
	return nil
}

// PlannerLLMConfig converts the planner section into the llm package's
// client config. Call ResolveSecrets first so the key is populated.
func (c *Config) PlannerLLMConfig() llm.Config {
	return llm.Config{
		Provider:    c.Planner.Provider,
		APIKey:      c.Planner.APIKey,
		ModelName:   c.Planner.Model,
		Host:        c.Planner.Host,
		MaxTokens:   c.Planner.MaxTokens,
		Temperature: c.Planner.Temperature,
	}
}
