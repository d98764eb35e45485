package main

import (
	"errors"
	"strings"

	"github.com/gcoo-labs/pinch/internal/storage"
	"github.com/gcoo-labs/pinch/sdk"
	"github.com/spf13/cobra"
)

func newLoginCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "login <token>",
		Short: "Store the bearer token sent with every API request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(args[0])
			if token == "" {
				return errors.New("token must not be empty")
			}
			if err := c.local.Set(cmd.Context(), sdk.TokenKey, []byte(token)); err != nil {
				return err
			}
			c.println("Logged in")
			return nil
		},
	}
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := c.local.Delete(cmd.Context(), sdk.TokenKey)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			c.println("Logged out")
			return nil
		},
	}
}
