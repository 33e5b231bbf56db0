package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/victor5516/raffles-api-core/internal/config"
	"github.com/victor5516/raffles-api-core/internal/domain"
	transporthttp "github.com/victor5516/raffles-api-core/internal/transport/http"
)

// tokenCmd mints admin bearer tokens signed with JWT_SECRET, for local use
// and for services that call the admin API.
func tokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed admin bearer token",
		Example: `  raffles-api token --sub ops@example.com --role verifier
  raffles-api token --sub root --role super_admin --ttl 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.Role(role)
			if r != domain.RoleSuperAdmin && r != domain.RoleVerifier {
				return fmt.Errorf("role must be %s or %s", domain.RoleSuperAdmin, domain.RoleVerifier)
			}
			cfg, _, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			token, err := transporthttp.IssueToken([]byte(cfg.JWTSecret), subject, r, ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "admin id placed in the token subject")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleVerifier), "super_admin or verifier")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}
