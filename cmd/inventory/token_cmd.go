package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/BerniPi/BGBB-IKT/internal/auth"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		username string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.TokenTTL
			}
			tokens, err := auth.NewTokens(cfg.JWTSecret, ttl, time.Now)
			if err != nil {
				return err
			}
			token, expires, err := tokens.Issue(username)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "user", "", "username recorded in the audit log (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime; defaults to INVENTORY_TOKEN_TTL")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
