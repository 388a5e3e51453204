// nautobot-chat is the conversational front end for the Nautobot MCP stack.
// It drives the planner/executor orchestration loop over one or more MCP
// capability servers and serves the chat HTTP API: POST /chat, GET /history,
// GET /context, POST /clear, GET /export/{json|md}, /healthz and /metrics.
//
// Usage:
//
//	nautobot-chat [-config config.yaml] [-addr :8501]   start the chat daemon
//	nautobot-chat repl [-session ID]                    interactive terminal chat
//	nautobot-chat secrets set                           encrypt credentials to disk
//	nautobot-chat secrets list                          show stored credential names
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ColtMercer/nautobot-mcp/pkg/chat"
	"github.com/ColtMercer/nautobot-mcp/pkg/config"
	"github.com/ColtMercer/nautobot-mcp/pkg/eventlog"
	"github.com/ColtMercer/nautobot-mcp/pkg/executor"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
	"github.com/ColtMercer/nautobot-mcp/pkg/mcp"
	"github.com/ColtMercer/nautobot-mcp/pkg/metrics"
	"github.com/ColtMercer/nautobot-mcp/pkg/orchestrator"
	"github.com/ColtMercer/nautobot-mcp/pkg/persistence"
	"github.com/ColtMercer/nautobot-mcp/pkg/planner"
	"github.com/ColtMercer/nautobot-mcp/pkg/registry"
	"github.com/ColtMercer/nautobot-mcp/pkg/transcript"
	"github.com/ColtMercer/nautobot-mcp/pkg/version"
	"github.com/ColtMercer/nautobot-mcp/pkg/webui"
)

func main() {
	// Positional subcommands first; everything else is daemon flags.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "secrets":
			os.Exit(runSecretsCommand(os.Args[2:]))
		case "repl":
			os.Exit(runREPLCommand(os.Args[2:]))
		}
	}

	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		addr        = flag.String("addr", "", "Listen address (overrides config)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("nautobot-chat %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
		os.Exit(0)
	}

	fmt.Println("⏳ Starting up...")
	os.Exit(run(*configPath, *addr))
}

// run contains the daemon logic and returns an exit code so defers in the
// call chain execute before the process exits.
func run(configPath, addr string) int {
	logger := logx.NewLogger("chat")

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if addr != "" {
		cfg.Chat.Addr = addr
	}

	if err := unlockSecrets(cfg.Chat.SecretsPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unlock secrets: %v\n", err)
		return 1
	}
	cfg.ResolveSecrets()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, &cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build orchestration stack: %v\n", err)
		return 1
	}
	defer st.Close()

	go maintainCatalog(ctx, st.registry, logger)

	web := webui.NewServer(st.service, st.registry, st.primaryURL)
	if err := web.StartServer(ctx, cfg.Chat.Addr); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		return 1
	}

	<-ctx.Done()
	// Give the HTTP shutdown goroutine a moment to drain in-flight requests.
	time.Sleep(100 * time.Millisecond)
	logger.Info("Shutdown complete")
	return 0
}

// stack bundles the orchestration pipeline behind the chat service so the
// daemon and the REPL share one wiring path.
type stack struct {
	service    *chat.Service
	registry   *registry.Registry
	store      *persistence.Store
	events     *eventlog.Writer
	logger     *logx.Logger
	primaryURL string
}

func buildStack(ctx context.Context, cfg *config.Config, logger *logx.Logger) (*stack, error) {
	rec := metrics.NewPrometheusRecorder()

	providers, primaryURL := mcpProviders(cfg)
	reg := registry.New(providers, nil)
	if err := reg.Refresh(ctx); err != nil {
		// Not fatal: the provider may come up later, maintainCatalog retries
		// and turns abort cleanly until the catalog is ready.
		logger.Warn("⚠️  Initial capability discovery failed: %v", err)
	} else {
		snap := reg.Snapshot()
		logger.Info("📋 Capability catalog ready: %d tools from %d backend(s)", snap.Len(), len(providers))
	}

	pl, err := buildPlanner(ctx, cfg, rec, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build planner: %w", err)
	}

	exec := executor.New(executor.Config{
		MaxConcurrentCalls: cfg.Executor.MaxConcurrentCalls,
		CallTimeout:        cfg.Executor.CallTimeout(),
	}, nil, rec)

	events, err := eventlog.NewWriter(cfg.Chat.EventLogDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	orch := orchestrator.New(pl, reg, exec, orchestrator.Config{
		MaxRounds:    cfg.Orchestrator.MaxRounds,
		TurnDeadline: cfg.Orchestrator.TurnTimeout(),
	}, nil, rec, events)

	store, err := persistence.Open(cfg.Chat.DBPath)
	if err != nil {
		if closeErr := events.Close(); closeErr != nil {
			logger.Warn("⚠️  Failed to close event log: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var scanner chat.SecretScanner
	if cfg.Chat.ScannerEnabled {
		scanner = chat.NewPatternScanner(cfg.Chat.ScannerTimeoutMs)
	}

	svc := chat.NewService(orch, chat.Options{
		Store:           store,
		Exporter:        transcript.New(cfg.Chat.ExportDir),
		Scanner:         scanner,
		MaxMessageChars: cfg.Chat.MaxMessageChars,
	})

	return &stack{
		service:    svc,
		registry:   reg,
		store:      store,
		events:     events,
		logger:     logger,
		primaryURL: primaryURL,
	}, nil
}

func (s *stack) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Warn("⚠️  Failed to close database: %v", err)
	}
	if err := s.events.Close(); err != nil {
		s.logger.Warn("⚠️  Failed to close event log: %v", err)
	}
}

// mcpProviders builds the capability backends. MCP_SERVERS holds a
// comma-separated list of name=url pairs (bare URLs get generated names);
// when unset, the single configured URL serves as the "nautobot" backend.
// The second return is the primary backend URL used for metrics scraping.
func mcpProviders(cfg *config.Config) ([]registry.Provider, string) {
	raw := os.Getenv("MCP_SERVERS")
	if raw == "" {
		return []registry.Provider{mcp.NewClient("nautobot", cfg.Chat.MCPURL, cfg.Server.APIKey)}, cfg.Chat.MCPURL
	}

	var (
		providers  []registry.Provider
		primaryURL string
	)
	for i, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, url := fmt.Sprintf("backend-%d", i), entry
		if k, v, ok := strings.Cut(entry, "="); ok {
			name, url = strings.TrimSpace(k), strings.TrimSpace(v)
		}
		if primaryURL == "" {
			primaryURL = url
		}
		providers = append(providers, mcp.NewClient(name, url, cfg.Server.APIKey))
	}
	return providers, primaryURL
}

func buildPlanner(ctx context.Context, cfg *config.Config, rec metrics.Recorder, logger *logx.Logger) (planner.Planner, error) {
	if cfg.Planner.Provider == config.ProviderHeuristic {
		logger.Info("💡 Using heuristic planner (no LLM credentials required)")
		return planner.NewHeuristicPlanner(nil), nil
	}

	factory := planner.NewFactory(planner.DefaultResilienceConfig(), rec, logger)
	factory.Start(ctx)
	client, err := factory.NewClient(cfg.PlannerLLMConfig())
	if err != nil {
		return nil, err
	}
	logger.Info("💡 Using %s planner (model: %s)", cfg.Planner.Provider, cfg.Planner.Model)
	return planner.NewLLMPlanner(client, cfg.Planner.MaxTokens, cfg.Planner.Temperature, nil), nil
}

// maintainCatalog keeps the capability catalog fresh: quick retries until
// the first successful discovery, then a slow steady-state refresh.
func maintainCatalog(ctx context.Context, reg *registry.Registry, logger *logx.Logger) {
	const (
		retryInterval   = 15 * time.Second
		refreshInterval = 5 * time.Minute
	)

	interval := retryInterval
	if reg.Snapshot().Ready() {
		interval = refreshInterval
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		wasReady := reg.Snapshot().Ready()
		if err := reg.Refresh(ctx); err != nil {
			logger.Warn("⚠️  Catalog refresh failed: %v", err)
			interval = retryInterval
			continue
		}
		if !wasReady {
			logger.Info("✅ Capability catalog recovered: %d tools", reg.Snapshot().Len())
		}
		interval = refreshInterval
	}
}
