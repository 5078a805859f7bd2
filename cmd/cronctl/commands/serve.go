package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/RezaEskandarii/cronctl/app"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run due jobs until interrupted",
		Long: `Schedule the internal maintenance jobs, then list due jobs every fetch
interval and run them on the worker pool. With RabbitMQ configured the due
batch is published and every runner consuming the queue executes it.

SIGINT or SIGTERM stops listing, waits for started runs, and releases the
locks of any run that did not finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return opts.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				return c.Start(ctx)
			})
		},
	}
}
