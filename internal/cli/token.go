package cli

import (
	"fmt"
	"time"

	"arena-quiz-service/internal/auth"
	"arena-quiz-service/internal/config"
	"arena-quiz-service/internal/domain"
	"github.com/spf13/cobra"
)

// NewTokenCmd mints a host bearer token for local use and tests.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		userID string
		name   string
		admin  bool
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a host JWT",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			authn, err := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = config.Duration(cfg.Auth.TokenTTL, 12*time.Hour)
			}
			token, err := authn.Issue(domain.Host{UserID: userID, DisplayName: name, IsAdmin: admin}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "host user id")
	cmd.Flags().StringVar(&name, "name", "", "host display name")
	cmd.Flags().BoolVar(&admin, "admin", true, "grant the admin role")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to auth.tokenTTL)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
