package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/victor5516/raffles-api-core/internal/config"
	"github.com/victor5516/raffles-api-core/migrations"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateStatusCmd())
	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, _, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			pool, err := openPool(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := migrations.Apply(ctx, pool)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Println("Database is up to date.")
				return nil
			}
			for _, name := range applied {
				fmt.Printf("%s %s\n", color.GreenString("APPLIED"), name)
			}
			return nil
		},
	}
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, _, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			pool, err := openPool(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			list, err := migrations.Status(ctx, pool)
			if err != nil {
				return err
			}
			pending := 0
			for _, m := range list {
				if m.Applied() {
					fmt.Printf("%s %s (%s)\n", color.GreenString("APPLIED"), m.Name, m.AppliedAt.Format("2006-01-02 15:04:05"))
					continue
				}
				pending++
				fmt.Printf("%s %s\n", color.YellowString("PENDING"), m.Name)
			}
			fmt.Printf("\n%d migrations, %d pending\n", len(list), pending)
			return nil
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
