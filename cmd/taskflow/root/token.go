package root

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"example.com/taskflow/internal/auth"
	"example.com/taskflow/internal/config"
)

func newTokenCmd() *cobra.Command {
	var subject, tenant string
	var ttl time.Duration
	var readOnly bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			if tenant == "" {
				tenant = cfg.DefaultTenantID
			}
			scopes := []string{auth.ScopeProductivityWrite}
			if readOnly {
				scopes = []string{auth.ScopeProductivityRead}
			}
			token, err := auth.IssueToken(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, subject, tenant, scopes, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "cli", "Token subject")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant ID (default DEFAULT_TENANT_ID)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Grant only productivity:read")
	return cmd
}
