package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/nhle/mailroom/internal/session"
)

func loginCmd(g *globalFlags) *cobra.Command {
	var expiresIn time.Duration

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API token as the current session",
		Long: "Stores a bearer token for the mail API in the system keyring. " +
			"The token is read from --token or prompted for.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}

			token := strings.TrimSpace(g.token)
			if token == "" {
				err := huh.NewInput().
					Title("API token").
					Description("Bearer token issued by the mail service").
					EchoMode(huh.EchoModePassword).
					Value(&token).
					Validate(validateRequired("Token")).
					Run()
				if err != nil {
					return err
				}
				token = strings.TrimSpace(token)
			}

			ring, err := session.OpenKeyring(cfg.Session)
			if err != nil {
				return err
			}

			tok := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
			if expiresIn > 0 {
				tok.Expiry = time.Now().Add(expiresIn)
			}
			if err := session.NewKeyringSource(ring).Save(tok); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Session saved.")
			return nil
		},
	}

	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "token lifetime; zero never expires")
	return cmd
}

func logoutCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			ring, err := session.OpenKeyring(cfg.Session)
			if err != nil {
				return err
			}
			if err := session.NewKeyringSource(ring).Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}
