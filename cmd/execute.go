// Package cmd contains the command-line entry points for the service.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/woodpecker023/woo-ai-chatbot/internal/config"
	"github.com/woodpecker023/woo-ai-chatbot/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.0.1"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the main entry point. Designed to be called from main() and
// exercised directly in tests.
func Execute() error {
	// --version and --help must work even when config or env is invalid.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			return printVersionInfo()
		case "help", "--help", "-h":
			printHelp()
			return nil
		}
	}

	logger := initLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx := context.Background()

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		return runMigrate(cfg, logger)
	}

	if err := checkRequiredEnv(); err != nil {
		return err
	}
	return runServe(ctx, cfg, logger)
}

// initLogger builds the structured logger. DEBUG in the environment raises
// the level; production deployments get JSON on stderr.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: os.Getenv("LOG_FORMAT") != "text"})
}

// checkRequiredEnv verifies the provider credential is present before
// startup, with a setup hint instead of a failed first request.
func checkRequiredEnv() error {
	if os.Getenv("GEMINI_API_KEY") == "" {
		fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY environment variable not set")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "The chat service requires a Gemini API key.")
		fmt.Fprintln(os.Stderr, "  export GEMINI_API_KEY=your-api-key")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Get your API key at: https://ai.google.dev/")
		return fmt.Errorf("GEMINI_API_KEY not set")
	}
	return nil
}

func printVersionInfo() error {
	fmt.Printf("woo-ai-chatbot v%s\n", AppVersion)
	fmt.Printf("Build: %s\n", BuildTime)
	fmt.Printf("Commit: %s\n", GitCommit)
	return nil
}

func printHelp() {
	fmt.Println("woo-ai-chatbot - conversational shopping assistant service")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  woo-ai-chatbot              Start the HTTP server (default)")
	fmt.Println("  woo-ai-chatbot migrate      Apply database migrations and exit")
	fmt.Println("  woo-ai-chatbot --version    Show version information")
	fmt.Println("  woo-ai-chatbot --help       Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Required: Gemini API key")
	fmt.Println("  WOOCHAT_*          Optional: configuration overrides")
	fmt.Println("  DEBUG              Optional: enable debug logging")
	fmt.Println("  LOG_FORMAT=text    Optional: human-readable logs")
}
