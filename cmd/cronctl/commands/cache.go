package commands

import (
	"context"
	"fmt"

	"github.com/RezaEskandarii/cronctl/app"
	"github.com/spf13/cobra"
)

func newCacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the materialized schedule cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "flush",
		Short: "Drop the schedule cache so the next listing rebuilds it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				if err := c.Events.FlushCache(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schedule cache flushed")
				return nil
			})
		},
	})
	return cmd
}
