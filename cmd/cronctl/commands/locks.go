package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/RezaEskandarii/cronctl/app"
	"github.com/RezaEskandarii/cronctl/internal/lock"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func newLocksCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "Inspect and reset the distributed run locks",
	}
	cmd.AddCommand(newLocksInspectCmd(opts), newLocksResetCmd(opts))
	return cmd
}

// lockKey maps an action name, or --global, to its lock key.
func lockKey(args []string, global bool) (string, error) {
	switch {
	case global && len(args) == 0:
		return lock.GlobalRunKey, nil
	case !global && len(args) == 1:
		return lock.ActionKey(args[0]), nil
	}
	return "", errors.New("pass exactly one of an action name or --global")
}

func newLocksInspectCmd(opts *rootOptions) *cobra.Command {
	var global bool
	cmd := &cobra.Command{
		Use:   "inspect [action]",
		Short: "Show the held slots of an action lock or the global run lock",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := lockKey(args, global)
			if err != nil {
				return err
			}
			return opts.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				held, touched, err := c.Locks.Inspect(ctx, key)
				if err != nil {
					return err
				}
				last := "never"
				if touched.Unix() > 0 {
					last = touched.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d held, last touched %s\n", key, held, last)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&global, "global", false, "Inspect the global run lock")
	return cmd
}

func newLocksResetCmd(opts *rootOptions) *cobra.Command {
	var global bool
	cmd := &cobra.Command{
		Use:   "reset [action]",
		Short: "Free every slot of an action lock or the global run lock",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := lockKey(args, global)
			if err != nil {
				return err
			}
			return opts.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				if err := c.Locks.Reset(ctx, key, c.Config.LockExpiry); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s reset\n", key)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&global, "global", false, "Reset the global run lock")
	return cmd
}
