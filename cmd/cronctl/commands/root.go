// Package commands is the cronctl command tree. Programs that embed the
// scheduler pass their handlers and schedules to NewRootCmd as options.
package commands

import (
	"context"

	"github.com/RezaEskandarii/cronctl/app"
	"github.com/RezaEskandarii/cronctl/internal/logger"
	"github.com/RezaEskandarii/cronctl/types/config"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	instance   string
	logLevel   string
	logFormat  string

	// extra is applied after the file and environment.
	extra []config.Option
}

// NewRootCmd builds the cronctl command tree.
func NewRootCmd(extra ...config.Option) *cobra.Command {
	opts := &rootOptions{extra: extra}

	root := &cobra.Command{
		Use:   "cronctl",
		Short: "Distributed, lock-governed job scheduler",
		Long: `cronctl stores scheduled jobs in Postgres or SQLite and runs them from any
number of runner processes, coordinated through shared locks in Redis.

Configuration is read from --config and CRONCTL_* environment variables,
for example CRONCTL_STORAGE_POSTGRES_URL or CRONCTL_QUEUE_BATCH_SIZE.

Examples:
  cronctl migrate                                  # Create the jobs table
  cronctl serve                                    # Run due jobs until interrupted
  cronctl events schedule --action send_digest --at +10m --args '[{"user":7}]'
  cronctl events list --status any
  cronctl locks reset send_digest`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Config file (yaml, toml or json)")
	root.PersistentFlags().StringVar(&opts.instance, "instance", "", "Runner instance name, overrides the config")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", logger.FormatJSON, "Log format (json or text)")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newEventsCmd(opts),
		newLocksCmd(opts),
		newCacheCmd(opts),
	)
	return root
}

func (o *rootOptions) logger(cmd *cobra.Command) (zerolog.Logger, error) {
	return logger.New(cmd.ErrOrStderr(), o.logLevel, o.logFormat)
}

func (o *rootOptions) config() (*config.CronControlConfig, error) {
	v, err := config.NewViper(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.instance != "" {
		v.Set("instance", o.instance)
	}
	if v.GetString("instance") == "" {
		v.Set("instance", "cronctl-"+uuid.NewString()[:8])
	}
	cfg, err := config.Load(v, o.extra...)
	if err != nil {
		return nil, errors.WithHint(err, "check the config file and CRONCTL_* environment variables")
	}
	return cfg, nil
}

// container loads the config and wires every component. The caller closes it.
func (o *rootOptions) container(ctx context.Context, cmd *cobra.Command) (*app.Container, error) {
	log, err := o.logger(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	return app.NewContainer(ctx, cfg, log)
}

// withContainer runs fn against a container that is closed afterwards.
func (o *rootOptions) withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *app.Container) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := o.container(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close(context.WithoutCancel(ctx))
	return fn(ctx, c)
}
