package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const serviceName = "raffles-api"

func main() {
	rootCmd := &cobra.Command{
		Use:   "raffles-api",
		Short: "Raffle purchase intake and ticket allocation API",
		Long: `Serves the purchase intake, admin review and webhook endpoints.
Without a subcommand it starts the HTTP server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
