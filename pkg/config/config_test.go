package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ColtMercer/nautobot-mcp/pkg/llm"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

// clearOverrideEnv blanks every override variable so ambient shell state
// cannot leak into assertions.
func clearOverrideEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"MCP_ADDR", "NAUTOBOT_URL", "CHAT_ADDR", "MCP_URL",
		"PLANNER_PROVIDER", "OPENAI_MODEL", "DEFAULT_MODEL", "OLLAMA_HOST",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearOverrideEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":7000" {
		t.Errorf("unexpected server addr %q", cfg.Server.Addr)
	}
	if cfg.Nautobot.URL != "http://nautobot:8080" {
		t.Errorf("unexpected nautobot url %q", cfg.Nautobot.URL)
	}
	if cfg.Orchestrator.MaxRounds != 6 {
		t.Errorf("unexpected max rounds %d", cfg.Orchestrator.MaxRounds)
	}
	if cfg.Orchestrator.TurnTimeout() != 120*time.Second {
		t.Errorf("unexpected turn timeout %v", cfg.Orchestrator.TurnTimeout())
	}
	if cfg.Executor.MaxConcurrentCalls != 4 {
		t.Errorf("unexpected fan-out %d", cfg.Executor.MaxConcurrentCalls)
	}
	if cfg.Executor.CallTimeout() != 10*time.Second {
		t.Errorf("unexpected call timeout %v", cfg.Executor.CallTimeout())
	}
	if cfg.Chat.Addr != ":8501" {
		t.Errorf("unexpected chat addr %q", cfg.Chat.Addr)
	}
	if cfg.Chat.MaxMessageChars != 4096 {
		t.Errorf("unexpected max message chars %d", cfg.Chat.MaxMessageChars)
	}
	if !cfg.Chat.ScannerEnabled || cfg.Chat.ScannerTimeoutMs != 100 {
		t.Errorf("unexpected scanner defaults %+v", cfg.Chat)
	}
	if cfg.Planner.Provider != llm.ProviderOpenAI || cfg.Planner.Model != "gpt-4o-mini" {
		t.Errorf("unexpected planner defaults %+v", cfg.Planner)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	clearOverrideEnv(t)
	path := writeConfig(t, `
server:
  addr: ":9000"
nautobot:
  url: "http://nautobot.example.com:8080"
orchestrator:
  max_rounds: 3
  turn_timeout_seconds: 60
executor:
  max_concurrent_calls: 2
  call_timeout_seconds: 5
planner:
  provider: heuristic
chat:
  addr: ":8601"
  mcp_url: "http://mcp:7000"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":9000" {
		t.Errorf("unexpected server addr %q", cfg.Server.Addr)
	}
	if cfg.Nautobot.URL != "http://nautobot.example.com:8080" {
		t.Errorf("unexpected nautobot url %q", cfg.Nautobot.URL)
	}
	if cfg.Orchestrator.MaxRounds != 3 || cfg.Orchestrator.TurnTimeout() != 60*time.Second {
		t.Errorf("unexpected orchestrator config %+v", cfg.Orchestrator)
	}
	if cfg.Executor.MaxConcurrentCalls != 2 || cfg.Executor.CallTimeout() != 5*time.Second {
		t.Errorf("unexpected executor config %+v", cfg.Executor)
	}
	if cfg.Planner.Provider != ProviderHeuristic {
		t.Errorf("unexpected planner provider %q", cfg.Planner.Provider)
	}
	if cfg.Chat.MCPURL != "http://mcp:7000" {
		t.Errorf("unexpected mcp url %q", cfg.Chat.MCPURL)
	}

	// Sections absent from the file keep their defaults.
	if cfg.Chat.ExportDir != "exports" {
		t.Errorf("unexpected export dir %q", cfg.Chat.ExportDir)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearOverrideEnv(t)
	t.Setenv("NAUTOBOT_URL", "http://env-nautobot:8080")
	t.Setenv("MCP_URL", "http://env-mcp:7000")
	t.Setenv("PLANNER_PROVIDER", "heuristic")
	t.Setenv("DEFAULT_MODEL", "gpt-4.1-mini")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Nautobot.URL != "http://env-nautobot:8080" {
		t.Errorf("env override not applied: %q", cfg.Nautobot.URL)
	}
	if cfg.Chat.MCPURL != "http://env-mcp:7000" {
		t.Errorf("env override not applied: %q", cfg.Chat.MCPURL)
	}
	if cfg.Planner.Provider != ProviderHeuristic {
		t.Errorf("env override not applied: %q", cfg.Planner.Provider)
	}
	if cfg.Planner.Model != "gpt-4.1-mini" {
		t.Errorf("env override not applied: %q", cfg.Planner.Model)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "negative rounds",
			content: "orchestrator:\n  max_rounds: -1\n",
			want:    "max_rounds",
		},
		{
			name:    "zero fan-out",
			content: "executor:\n  max_concurrent_calls: 0\n",
			want:    "max_concurrent_calls",
		},
		{
			name:    "unknown provider",
			content: "planner:\n  provider: psychic\n",
			want:    "not supported",
		},
		{
			name:    "zero message limit",
			content: "chat:\n  max_message_chars: 0\n",
			want:    "max_message_chars",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected %q in error, got %q", tc.want, err.Error())
			}
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "{{{not yaml")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestResolveSecrets(t *testing.T) {
	SetDecryptedSecrets(map[string]string{
		EnvMCPAPIKey:     "file-mcp-key",
		EnvNautobotToken: "file-token",
		EnvOpenAIKey:     "file-openai-key",
	})
	t.Cleanup(func() { SetDecryptedSecrets(nil) })

	cfg := Default()
	cfg.ResolveSecrets()

	if cfg.Server.APIKey != "file-mcp-key" {
		t.Errorf("unexpected server key %q", cfg.Server.APIKey)
	}
	if cfg.Nautobot.Token != "file-token" {
		t.Errorf("unexpected nautobot token %q", cfg.Nautobot.Token)
	}
	if cfg.Planner.APIKey != "file-openai-key" {
		t.Errorf("unexpected planner key %q", cfg.Planner.APIKey)
	}
}

func TestResolveSecretsHeuristicNeedsNoKey(t *testing.T) {
	SetDecryptedSecrets(nil)
	cfg := Default()
	cfg.Planner.Provider = ProviderHeuristic
	cfg.ResolveSecrets()

	if cfg.Planner.APIKey != "" {
		t.Errorf("heuristic planner should not resolve a key, got %q", cfg.Planner.APIKey)
	}
}

func TestResolveSecretsEnvFallback(t *testing.T) {
	SetDecryptedSecrets(nil)
	t.Setenv(EnvNautobotToken, "env-token")

	cfg := Default()
	cfg.ResolveSecrets()
	if cfg.Nautobot.Token != "env-token" {
		t.Errorf("expected env fallback, got %q", cfg.Nautobot.Token)
	}
}

func TestPlannerLLMConfig(t *testing.T) {
	cfg := Default()
	cfg.Planner.APIKey = "sk-test"

	lc := cfg.PlannerLLMConfig()
	if lc.Provider != llm.ProviderOpenAI || lc.APIKey != "sk-test" || lc.ModelName != "gpt-4o-mini" {
		t.Errorf("unexpected llm config %+v", lc)
	}
	if err := lc.Validate(); err != nil {
		t.Errorf("expected valid llm config, got %v", err)
	}
}
