package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/campuschat/internal/app"
	"github.com/vovakirdan/campuschat/internal/auth"
)

var (
	tokenUser string
	tokenName string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign an access token for local testing",
	Long: `Sign a JWT with the configured secret, issuer and audience.

Production deployments receive tokens from the identity provider; this
command exists for development and smoke tests.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		jwtCfg := app.NewJWTConfig(&cfg)
		if tokenTTL > 0 {
			jwtCfg.TTL = tokenTTL
		}
		token, err := auth.GenerateToken(jwtCfg, tokenUser, tokenName)
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenUser, "user", "u", "", "user id (token subject)")
	tokenCmd.Flags().StringVarP(&tokenName, "name", "n", "", "display name")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default from server config)")
	_ = tokenCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(tokenCmd)
}
