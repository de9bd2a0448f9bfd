package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/ReelDrop/internal/config"
	"github.com/dharsanguruparan/ReelDrop/internal/logging"
)

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "reeldrop: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "reeldrop",
		Short: "ReelDrop operator CLI",
		Long: `ReelDrop CLI runs the webhook server and expiry worker, and lets an operator
inspect catalog items, the artifact cache and pending expiries from a shell.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				loaded.LogLevel = logLevel
			}
			logging.Init(loaded.LogLevel, loaded.LogFormat)
			cfg = loaded
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override REELDROP_LOG_LEVEL")
	cmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newResolveCmd(),
		newSearchCmd(),
		newCacheCmd(),
		newExpireCmd(),
		newDeliverCmd(),
		newTestCmd(),
	)
	return cmd
}
