package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command.
func buildServeCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agentcore HTTP facade",
		Long: `Start the Agent Facade, the Broadcast Hub's WebSocket endpoint, and
the Prometheus /metrics endpoint, reading configuration entirely from
the environment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), debug)
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug-level logging")
	return cmd
}

// buildMigrateCmd creates the "migrate" command group.
func buildMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Apply or inspect the additive CREATE TABLE IF NOT EXISTS migrations
that back the users, provider_keys, and role_assignments tables.`,
	}
	cmd.AddCommand(buildMigrateUpCmd(), buildMigrateStatusCmd())
	return cmd
}

func buildMigrateUpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd.Context())
		},
	}
	return cmd
}

func buildMigrateStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether the schema is up to date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(cmd.Context())
		},
	}
	return cmd
}
