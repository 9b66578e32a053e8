package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"poplift/internal/auth"
	"poplift/internal/config"
)

var (
	tokenUser  string
	tokenEmail string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign a bearer token for local testing",
	Long: `Sign a bearer token with POPLIFT_JWT_SECRET for calling account routes
locally. Disabled in production.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseUserFlag(tokenUser)
		if err != nil {
			return err
		}

		cfg := config.Get()
		if cfg.IsProduction() {
			return fmt.Errorf("token signing is disabled in production")
		}
		if os.Getenv("POPLIFT_JWT_SECRET") == "" {
			fmt.Fprintln(cmd.ErrOrStderr(), "⚠️  POPLIFT_JWT_SECRET is not set; the server will not accept this token")
		}

		token, err := auth.SignToken(cfg.JWTSecret, cfg.JWTAudience, userID, tokenEmail, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "account UUID (token subject)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
}
