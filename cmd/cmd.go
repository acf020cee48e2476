// Package cmd provides the docbase CLI commands.
//
// Commands:
//   - serve: HTTP API server with SSE chat streaming
//   - migrate: apply database migrations and exit
//   - version: print build information
//
// All commands install signal handling and shut down gracefully via
// context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/docbase/docbase/internal/config"
	"github.com/docbase/docbase/internal/log"
)

// Execute is the main entry point for the docbase CLI.
func Execute() error {
	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "migrate":
		return runMigrate()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// newLogger builds the process logger from configuration.
func newLogger(cfg *config.Config) log.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: cfg.LogJSON})
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("docbase - document ingestion and retrieval-augmented chat service")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  docbase serve      Start the HTTP API server")
	fmt.Println("  docbase migrate    Apply database migrations and exit")
	fmt.Println("  docbase version    Show version information")
	fmt.Println("  docbase help       Show this help")
	fmt.Println()
	fmt.Println("Configuration is read from config.yaml (working directory or")
	fmt.Println("/etc/docbase) and DOCBASE_* environment variables.")
	fmt.Println()
	fmt.Println("Required settings:")
	fmt.Println("  DOCBASE_DATABASE_URL      Postgres connection string (pgvector required)")
	fmt.Println("  DOCBASE_GEMINI_API_KEY    Model provider API key")
}
