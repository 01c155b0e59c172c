package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"securechat/internal/relay"
)

// listen: print incoming messages for --username until interrupted.
func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Print incoming messages until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := connect(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer c.Close()

			fmt.Fprintf(cmd.ErrOrStderr(), "Listening as %s. Press Ctrl-C to stop.\n", c.Username())
			for {
				m, err := c.Receive(cmd.Context())
				var serr *relay.ServerError
				switch {
				case err == nil:
					printMessage(cmd.OutOrStdout(), m)
				case errors.As(err, &serr):
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", serr.Message)
				case cmd.Context().Err() != nil:
					return nil
				default:
					return err
				}
			}
		},
	}
}

func printMessage(w io.Writer, m relay.Message) {
	fmt.Fprintf(w, "[%s] %s: %s\n", m.At.Local().Format("15:04:05"), m.From, m.Text)
}
