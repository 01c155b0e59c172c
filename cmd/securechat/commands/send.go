package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"securechat/internal/domain"
	"securechat/internal/relay"
)

// errorGrace is how long send waits for the relay to reject a message.
const errorGrace = 500 * time.Millisecond

// send <peer> <message...>: encrypt and send a message to <peer>.
func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <peer> <message...>",
		Short: "Encrypt and send a message to a peer",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := connect(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer c.Close()

			peer := domain.Username(args[0])
			if err := c.Send(peer, strings.Join(args[1:], " ")); err != nil {
				return err
			}

			// Chat frames are not acknowledged, only rejected.
			ctx, cancel := context.WithTimeout(cmd.Context(), errorGrace)
			defer cancel()
			_, err = c.Receive(ctx)
			var serr *relay.ServerError
			if errors.As(err, &serr) {
				return serr
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sent")
			return nil
		},
	}
}
