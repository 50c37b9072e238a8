package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ovaphlow/fridge/internal/session"
)

// NewRootCmd creates the root command for the fridge CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "fridge",
		Short:        "Fridge authentication server",
		SilenceUsage: true,
	}
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewGenSecretCmd())
	return cmd
}

// NewGenSecretCmd prints a random value for SESSION_SECRET.
func NewGenSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-secret",
		Short: "Print a random session secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := session.GenerateSecret()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), s)
			return err
		},
	}
}
