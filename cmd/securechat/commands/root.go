package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"securechat/internal/discovery"
	"securechat/internal/domain"
	"securechat/internal/relay"
)

const (
	defaultRelayURL = "ws://127.0.0.1:8080/ws"
	passwordEnv     = "SECURECHAT_PASSWORD"
)

var (
	relayURL string
	username string
	password string
	insecure bool
	useMDNS  bool
	instance string
	timeout  time.Duration
)

// Execute runs the CLI until the command returns or the process is
// interrupted.
func Execute() error {
	root := &cobra.Command{
		Use:          "securechat",
		Short:        "End-to-end encrypted chat client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(passwordEnv)
			}
			if relayURL != "" {
				return nil
			}
			if !useMDNS {
				relayURL = defaultRelayURL
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), discovery.DefaultBrowseTimeout)
			defer cancel()
			r, err := discovery.Find(ctx, instance)
			if err != nil {
				return err
			}
			relayURL = r.URL()
			fmt.Fprintf(cmd.ErrOrStderr(), "Using relay %s (%s)\n", r.Instance, relayURL)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&relayURL, "relay", "", "relay WebSocket URL (default "+defaultRelayURL+")")
	root.PersistentFlags().StringVarP(&username, "username", "u", "", "your username")
	root.PersistentFlags().StringVarP(&password, "password", "p", "", "your password (or $"+passwordEnv+")")
	root.PersistentFlags().BoolVar(&insecure, "insecure", false, "skip TLS certificate verification")
	root.PersistentFlags().BoolVar(&useMDNS, "mdns", false, "find the relay on the local network")
	root.PersistentFlags().StringVar(&instance, "instance", "", "relay instance name to look for with --mdns")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 15*time.Second, "timeout for each request")

	root.AddCommand(signupCmd(), usersCmd(), sendCmd(), listenCmd(), historyCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return root.ExecuteContext(ctx)
}

// connect dials the relay, authenticates and completes the key exchange.
// It returns the other registered users when logging in.
func connect(ctx context.Context, signup bool) (*relay.Client, []domain.Username, error) {
	if username == "" || password == "" {
		return nil, nil, fmt.Errorf("--username and --password are required")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c, err := relay.Dial(ctx, relayURL, relay.Options{InsecureSkipVerify: insecure})
	if err != nil {
		return nil, nil, err
	}

	var users []domain.Username
	if signup {
		err = c.Signup(ctx, domain.Username(username), password)
	} else {
		users, err = c.Login(ctx, domain.Username(username), password)
	}
	if err == nil {
		err = c.ExchangeKey(ctx)
	}
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	return c, users, nil
}
