package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clawdbot/clawdbot/internal/gateway"
)

// newServeCmd creates the `clawdbot serve` command: the long-running
// gateway process.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway: channels, bridge, cron, and heartbeat",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			gw, err := gateway.New(ctx, cfg)
			if err != nil {
				return err
			}

			slog.Info("clawdbot starting")
			return gw.Run(ctx)
		},
	}
}
