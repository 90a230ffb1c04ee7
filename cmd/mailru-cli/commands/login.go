package commands

import (
	"fmt"
	"log/slog"
	"mailru-backend/internal/mailru/cookie"
	"mailru-backend/internal/mailru/session"

	"github.com/spf13/cobra"
)

var (
	loginEmail *string
	loginScope *string
)

func init() {
	loginEmail = loginCmd.Flags().String("email", "", "Account e-mail, overrides login.email.")
	loginScope = loginCmd.Flags().String("scope", "", "Space separated privileges, every privilege by default.")
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login [--email <address>] [--scope <privileges>]",
	Short: "Logs in with the configured account, prints the access token and saves the cookies to cookies_file.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := session.LoginOptions{
			Email:    env.config.Login.Email,
			Password: env.config.Login.Password,
			Scope:    env.config.Login.Scope,
		}
		if *loginEmail != "" {
			opts.Email = *loginEmail
		}
		if *loginScope != "" {
			opts.Scope = *loginScope
		}
		if opts.Email == "" {
			return fmt.Errorf("login.email or --email is required")
		}

		grant, err := env.session.Login(cmd.Context(), opts)
		if err != nil {
			return err
		}

		if env.config.CookiesFile != "" {
			err = cookie.WriteFile(env.config.CookiesFile, env.session.Cookies())
			if err != nil {
				return fmt.Errorf("save cookies: %w", err)
			}
			slog.Info("saved cookies", "path", env.config.CookiesFile)
		}
		return printJSON(grant)
	},
}
