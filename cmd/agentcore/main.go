// Package main provides the CLI entry point for agentcore.
//
// agentcore is the core of a multi-user, autonomous code-modification
// agent service: an HTTP facade that turns a natural-language prompt
// into a planned, executed, and narrated set of file changes inside a
// per-user project workspace.
//
// # Basic usage
//
// Start the server:
//
//	agentcore serve
//
// Apply pending database migrations:
//
//	agentcore migrate up
//
// # Environment variables
//
//   - PORT: HTTP listen port (default 8080)
//   - LLM_SERVER_URL: base URL of the LLM invocation/embedding microservice
//   - JWT_SECRET_KEY, ENCRYPTION_KEY, BETA_ACCESS_KEY, DATABASE_URL: required
//   - ACCESS_TOKEN_EXPIRE_MINUTES (default 30), ALGORITHM (default HS256)
//   - WORKSPACES_ROOT (default ./workspaces)
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main so tests can exercise it directly.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentcore",
		Short: "agentcore - multi-user autonomous code-modification agent core",
		Long: `agentcore plans and executes multi-file code changes against a
user's project workspace, driven by natural-language prompts and narrated
live over a WebSocket command deck.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
	)
	return rootCmd
}
