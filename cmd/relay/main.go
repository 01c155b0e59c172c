package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"securechat/internal/app"
)

func newRootCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Encrypted chat relay",
		Example: `  # Start the relay with a custom configuration file
  relay -f /etc/securechat/relay.toml`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(configFile)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "f", "relay.toml",
		"path to the relay configuration file (TOML format)")
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func runRelay(configFile string) error {
	cfg, err := app.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config file '%v': %v", configFile, err)
	}

	// Setup the signal handling.
	haltCh := make(chan os.Signal, 1)
	signal.Notify(haltCh, os.Interrupt, syscall.SIGTERM)

	rotateCh := make(chan os.Signal, 1)
	signal.Notify(rotateCh, syscall.SIGHUP)

	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to spawn relay instance: %v", err)
	}
	defer a.Halt()

	// Halt the relay gracefully on SIGINT/SIGTERM.
	go func() {
		<-haltCh
		a.Halt()
	}()

	// Rotate relay logs upon SIGHUP.
	go func() {
		for range rotateCh {
			a.RotateLog()
		}
	}()

	// Wait for the relay to explode or be terminated.
	return a.Wait()
}
