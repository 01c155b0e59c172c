package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func signupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Register --username with --password on the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := connect(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Signed up as %s.\nRelay key fingerprint: %s\n", c.Username(), c.Fingerprint())
			return nil
		},
	}
}
