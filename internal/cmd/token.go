package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/codex-agent/codexd/internal/auth"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}
	cmd.AddCommand(newTokenCreateCmd())
	cmd.AddCommand(newTokenListCmd())
	cmd.AddCommand(newTokenRevokeCmd())
	cmd.AddCommand(newTokenRotateCmd())
	return cmd
}

func tokenStore(cmd *cobra.Command) (*auth.TokenStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return auth.NewTokenStore(cfg.ConfigDir), nil
}

func newTokenCreateCmd() *cobra.Command {
	var (
		permissions []string
		expiresIn   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Mint a new API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := tokenStore(cmd)
			if err != nil {
				return err
			}

			var expiresAt *time.Time
			if expiresIn > 0 {
				t := time.Now().UTC().Add(expiresIn)
				expiresAt = &t
			}

			rec, wire, err := store.Create(args[0], permissions, expiresAt)
			if err != nil {
				return err
			}
			fmt.Printf("token %s created\n", rec.ID)
			// The secret is only shown once; the store keeps a hash.
			fmt.Printf("secret: %s\n", wire)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&permissions, "permission", nil, "permission scope (repeatable, e.g. session:read or group:*)")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "lifetime, e.g. 720h; 0 means no expiry")
	return cmd
}

func newTokenListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := tokenStore(cmd)
			if err != nil {
				return err
			}
			records, err := store.List()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPERMISSIONS\tCREATED\tSTATE")
			for _, rec := range records {
				state := "active"
				switch {
				case rec.RevokedAt != nil:
					state = "revoked"
				case rec.ExpiresAt != nil && time.Now().After(*rec.ExpiresAt):
					state = "expired"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					rec.ID, rec.Name, strings.Join(rec.Permissions, ","),
					rec.CreatedAt.Format(time.RFC3339), state)
			}
			return w.Flush()
		},
	}
}

func newTokenRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := tokenStore(cmd)
			if err != nil {
				return err
			}
			if err := store.Revoke(args[0]); err != nil {
				return err
			}
			fmt.Printf("token %s revoked\n", args[0])
			return nil
		},
	}
}

func newTokenRotateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate <id>",
		Short: "Rotate a token's secret, invalidating the old one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := tokenStore(cmd)
			if err != nil {
				return err
			}
			rec, wire, err := store.Rotate(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("token %s rotated\n", rec.ID)
			fmt.Printf("secret: %s\n", wire)
			return nil
		},
	}
}
