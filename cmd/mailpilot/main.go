// Mailpilot is a conversational Gmail assistant.
//
// It drives a tool-calling loop against an OpenAI-compatible chat
// completion API: the model searches the mailbox, opens messages,
// drafts replies, and sends them through the Gmail API, all steered
// from an interactive terminal session. Configuration is loaded from a
// single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	mailpilot                Start an interactive chat session
//	mailpilot chat           Same as above
//	mailpilot auth           Run the Gmail OAuth flow and exit
//	mailpilot usage          Print token usage totals for the last 30 days
//	mailpilot version        Print version and build information
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mailpilot-ai/mailpilot/internal/agent"
	"github.com/mailpilot-ai/mailpilot/internal/buildinfo"
	"github.com/mailpilot-ai/mailpilot/internal/config"
	"github.com/mailpilot-ai/mailpilot/internal/gmail"
	"github.com/mailpilot-ai/mailpilot/internal/llm"
	"github.com/mailpilot-ai/mailpilot/internal/tools"
	"github.com/mailpilot-ai/mailpilot/internal/usage"
)

// main constructs the OS-level environment and delegates to [run] so
// the full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. OS-level dependencies are injected:
// ctx controls process lifetime, stdin/stdout/stderr carry the chat
// session, and args is os.Args[1:]. Arguments are parsed by hand; the
// flag package's global state gets in the way of parallel tests and
// the surface here is tiny.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var command string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			return fmt.Errorf("unknown argument: %s (try -help)", args[i])
		}
	}

	// version needs no config; keep it usable on a fresh machine.
	if command == "version" {
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	}
	if command == "help" {
		return printUsage(stdout)
	}

	// A .env next to the binary is a convenience for OPENAI_API_KEY;
	// absence is not an error.
	_ = godotenv.Load()

	path, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
	logger.Debug("starting", "version", buildinfo.String(), "config", path)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "", "chat":
		return runChatCommand(ctx, stdin, stdout, cfg, logger)
	case "auth":
		return runAuthCommand(ctx, stdout, cfg, logger)
	case "usage":
		return runUsageCommand(ctx, stdout, cfg)
	default:
		return fmt.Errorf("unknown command: %s (try -help)", command)
	}
}

// authorizedService builds the Gmail gateway, running the OAuth
// loopback flow first when no valid token with the required scopes is
// cached.
func authorizedService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*gmail.Service, error) {
	oauthCfg, err := gmail.LoadOAuthConfig(cfg.Gmail.CredentialsPath)
	if err != nil {
		return nil, err
	}

	tok, err := gmail.NewToken(oauthCfg, cfg.Gmail.TokenPath, logger)
	if err != nil {
		return nil, err
	}

	if _, err := tok.OAuthToken(); errors.Is(err, gmail.ErrTokenNotSet) || !tok.HasScopes(gmail.Scopes) {
		logger.Info("authorization required", "tokenPath", cfg.Gmail.TokenPath)
		if err := tok.Authorize(ctx); err != nil {
			return nil, fmt.Errorf("gmail authorization: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	return gmail.NewService(oauthCfg, tok, logger), nil
}

func runChatCommand(ctx context.Context, stdin io.Reader, stdout io.Writer, cfg *config.Config, logger *slog.Logger) error {
	mail, err := authorizedService(ctx, cfg, logger)
	if err != nil {
		return err
	}

	client := llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, logger)
	if err := client.Ping(ctx); err != nil {
		logger.Warn("completion API unreachable at startup", "baseUrl", cfg.OpenAI.BaseURL, "error", err)
	}

	store, err := usage.NewStore(filepath.Join(cfg.DataDir, "usage.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	a := agent.New(agent.Options{
		Client:   client,
		Registry: tools.NewRegistry(mail, client, logger),
		Usage:    store,
		Logger:   logger,
	})

	if err := runChat(ctx, stdin, stdout, a); err != nil {
		return err
	}

	printSessionUsage(ctx, stdout, store, a.SessionID())
	return nil
}

func runAuthCommand(ctx context.Context, stdout io.Writer, cfg *config.Config, logger *slog.Logger) error {
	oauthCfg, err := gmail.LoadOAuthConfig(cfg.Gmail.CredentialsPath)
	if err != nil {
		return err
	}
	tok, err := gmail.NewToken(oauthCfg, cfg.Gmail.TokenPath, logger)
	if err != nil {
		return err
	}
	if err := tok.Authorize(ctx); err != nil {
		return fmt.Errorf("gmail authorization: %w", err)
	}
	fmt.Fprintf(stdout, "Authorized. Token saved to %s\n", cfg.Gmail.TokenPath)
	return nil
}

func runUsageCommand(ctx context.Context, stdout io.Writer, cfg *config.Config) error {
	store, err := usage.NewStore(filepath.Join(cfg.DataDir, "usage.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	end := time.Now()
	start := end.AddDate(0, 0, -30)
	sum, err := store.Summary(ctx, start, end)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Last 30 days: %d completions, %d prompt tokens, %d completion tokens\n",
		sum.TotalRecords, sum.TotalPromptTokens, sum.TotalCompletionTokens)
	return nil
}

func printSessionUsage(ctx context.Context, stdout io.Writer, store *usage.Store, sessionID string) {
	sum, err := store.SessionSummary(ctx, sessionID)
	if err != nil || sum.TotalRecords == 0 {
		return
	}
	fmt.Fprintf(stdout, "Session usage: %d completions, %d prompt tokens, %d completion tokens\n",
		sum.TotalRecords, sum.TotalPromptTokens, sum.TotalCompletionTokens)
}

func printUsage(w io.Writer) error {
	fmt.Fprintf(w, `mailpilot - conversational Gmail assistant

Usage:
  mailpilot [flags] [command]

Commands:
  chat       Start an interactive chat session (default)
  auth       Run the Gmail OAuth flow and exit
  usage      Print token usage totals for the last 30 days
  version    Print version and build information
  help       Show this help

Flags:
  -config PATH   Config file (default: search %v)
`, config.DefaultSearchPaths())
	return nil
}
