// nautobot-mcp-server exposes Nautobot network inventory tools over the MCP
// HTTP surface: GET /tools for discovery, POST /tools/{name}:invoke for
// execution, plus /healthz and Prometheus /metrics.
//
// Usage: nautobot-mcp-server -config config.yaml -tools get_prefixes_by_location,get_devices_by_location
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ColtMercer/nautobot-mcp/pkg/config"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
	"github.com/ColtMercer/nautobot-mcp/pkg/mcp"
	"github.com/ColtMercer/nautobot-mcp/pkg/metrics"
	"github.com/ColtMercer/nautobot-mcp/pkg/nautobot"
	"github.com/ColtMercer/nautobot-mcp/pkg/tools"
	"github.com/ColtMercer/nautobot-mcp/pkg/version"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		addr        = flag.String("addr", "", "Listen address (overrides config)")
		nautobotURL = flag.String("nautobot-url", "", "Nautobot base URL (overrides config)")
		toolList    = flag.String("tools", "", "Comma-separated list of tools to expose (default: all)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("nautobot-mcp-server %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
		os.Exit(0)
	}

	os.Exit(run(*configPath, *addr, *nautobotURL, *toolList))
}

// run contains the main application logic and returns an exit code so
// defers in main still execute.
func run(configPath, addr, nautobotURL, toolList string) int {
	logger := logx.NewLogger("mcp-server")

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if nautobotURL != "" {
		cfg.Nautobot.URL = nautobotURL
	}

	// Headless daemon: credentials come from the environment.
	cfg.ResolveSecrets()
	if cfg.Nautobot.Token == "" {
		logger.Warn("⚠️  %s is not set; Nautobot queries will run unauthenticated", config.EnvNautobotToken)
	}
	if cfg.Server.APIKey == "" {
		logger.Warn("⚠️  %s is not set; falling back to the development API key", config.EnvMCPAPIKey)
	}

	client := nautobot.New(cfg.Nautobot.URL, cfg.Nautobot.Token)

	var toolNames []string
	if toolList != "" {
		toolNames = strings.Split(toolList, ",")
		for i := range toolNames {
			toolNames[i] = strings.TrimSpace(toolNames[i])
		}
	}

	provider, err := tools.NewProvider(client, toolNames)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build tool provider: %v\n", err)
		return 1
	}

	server, err := mcp.NewServer(provider, mcp.ServerConfig{
		Addr:   cfg.Server.Addr,
		APIKey: cfg.Server.APIKey,
	}, logger, metrics.NewPrometheusRecorder())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create server: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		return 1
	}

	logger.Info("Shutdown complete")
	return 0
}
