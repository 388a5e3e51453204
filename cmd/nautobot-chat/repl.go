package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
	"github.com/ColtMercer/nautobot-mcp/pkg/chat"
	"github.com/ColtMercer/nautobot-mcp/pkg/config"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
	"github.com/ColtMercer/nautobot-mcp/pkg/session"
)

// runREPLCommand starts a terminal chat session against the same
// orchestration stack the daemon runs, without the HTTP surface.
func runREPLCommand(args []string) int {
	flagSet := flag.NewFlagSet("repl", flag.ExitOnError)
	configPath := flagSet.String("config", "", "Path to YAML config file")
	sessionID := flagSet.String("session", "", "Session ID to resume (default: new session)")
	if err := flagSet.Parse(args); err != nil {
		return 1
	}

	logger := logx.NewLogger("repl")

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
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

	id := *sessionID
	if id == "" {
		id = uuid.New().String()
	}

	fmt.Println()
	fmt.Printf("💬 Nautobot chat (session %s)\n", id)
	fmt.Println("   Type /help for commands, /quit to exit.")
	fmt.Println()

	return replLoop(ctx, st.service, id)
}

func replLoop(ctx context.Context, svc *chat.Service, sessionID string) int {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return 0
		}
		if ctx.Err() != nil {
			return 0
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if done := replCommand(ctx, svc, sessionID, line); done {
				return 0
			}
			continue
		}

		started := time.Now()
		turn, err := svc.Post(ctx, sessionID, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			if ctx.Err() != nil {
				return 1
			}
			continue
		}
		printTurn(turn, time.Since(started))
	}
}

// replCommand handles slash commands; it returns true when the loop should
// exit.
func replCommand(ctx context.Context, svc *chat.Service, sessionID, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		fmt.Println("👋 Bye.")
		return true

	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /context         show session and cache state")
		fmt.Println("  /clear           drop history and cached results")
		fmt.Println("  /export [json|md] write a transcript file (default: md)")
		fmt.Println("  /quit            exit")

	case "/context":
		info, err := svc.Context(ctx, sessionID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			return false
		}
		fmt.Printf("Session %s: %d turns, %d cached results\n", info.SessionID, info.Turns, info.CacheEntries)
		for _, fp := range info.CacheFingerprints {
			fmt.Printf("  • %s\n", fp)
		}

	case "/clear":
		if err := svc.Clear(ctx, sessionID); err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			return false
		}
		fmt.Println("🔄 History cleared.")

	case "/export":
		format := arg
		if format == "" {
			format = chat.FormatMarkdown
		}
		path, err := svc.Export(ctx, sessionID, format)
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
			return false
		}
		fmt.Printf("📝 Transcript written to %s\n", path)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command %s (try /help)\n", cmd)
	}
	return false
}

func printTurn(turn *session.Turn, elapsed time.Duration) {
	fmt.Println()
	if turn.Text != "" {
		fmt.Println(turn.Text)
	}

	if len(turn.Citations) > 0 {
		fmt.Printf("\n📊 %d tool call(s) over %d round(s), %s total:\n",
			len(turn.Citations), turn.Rounds, elapsed.Round(time.Millisecond))
		for _, c := range turn.Citations {
			fmt.Printf("  %s\n", formatCitation(c))
		}
	}

	if turn.Incomplete {
		fmt.Printf("\n⚠️  Incomplete answer (%s)\n", turn.AbortReason)
	}
	fmt.Println()
}

func formatCitation(c session.Citation) string {
	name := c.Request.CapabilityName
	switch c.Result.Kind {
	case capability.ResultCacheHit:
		return fmt.Sprintf("[round %d] %s ♻️  reused from round %d", c.Round, name, c.Result.OriginalRound)
	case capability.ResultFailure:
		return fmt.Sprintf("[round %d] %s ❌ %s: %s", c.Round, name, c.Result.FailureKind, c.Result.Message)
	default:
		return fmt.Sprintf("[round %d] %s ✅ (%s)", c.Round, name, c.Result.Elapsed.Round(time.Millisecond))
	}
}
