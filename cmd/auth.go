package cmd

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/email-assistant-core/server/internal/gateway/google"
)

func newAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorise Gmail and Calendar access",
		Long: `Run the OAuth installed-app flow for the Google account the assistant
sends mail and books meetings as. Reads GOOGLE_CREDENTIALS_FILE and writes
the token to GOOGLE_TOKEN_FILE.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnvFile(envFile); err != nil {
				return err
			}
			var cfg google.Config
			if err := envconfig.Process("", &cfg); err != nil {
				return fmt.Errorf("process environment config: %w", err)
			}

			conf, err := google.LoadOAuthConfig(cfg.CredentialsFile)
			if err != nil {
				return err
			}
			return google.Authorize(cmd.Context(), conf, google.NewTokenStore(cfg.TokenFile), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
