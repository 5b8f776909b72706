package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/whatsapp-inbox/internal/middleware"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an operator token signed with JWT_SECRET",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, _ := cmd.Flags().GetString("secret")
		tenant, _ := cmd.Flags().GetString("tenant")
		operator, _ := cmd.Flags().GetString("operator")
		scopes, _ := cmd.Flags().GetStringSlice("scope")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		if tenant == "" || operator == "" {
			return fmt.Errorf("--tenant and --operator are required")
		}

		token, err := middleware.SignToken(secret, tenant, operator, scopes, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("secret", envOr("JWT_SECRET", "development-secret-change-in-production"), "HMAC signing secret")
	tokenCmd.Flags().String("tenant", os.Getenv("INBOX_TENANT"), "Tenant ID")
	tokenCmd.Flags().String("operator", "", "Operator ID")
	tokenCmd.Flags().StringSlice("scope", nil, "Extra scopes, e.g. "+middleware.ScopeChannel)
	tokenCmd.Flags().Duration("ttl", 8*time.Hour, "Token lifetime")
}
