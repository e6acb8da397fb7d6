package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the orchestrator admin CLI. Subcommands are
// attached here.
var rootCmd = &cobra.Command{
	Use:           "tenantctl",
	Short:         "Tenant orchestrator admin CLI",
	Long:          "Administrative utilities for the tenant orchestrator (onboarding, deprovisioning, rollback, registry inspection).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
