package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/RezaEskandarii/cronctl/app"
	"github.com/RezaEskandarii/cronctl/internal/dispatch"
	"github.com/RezaEskandarii/cronctl/internal/state"
	"github.com/RezaEskandarii/cronctl/internal/store"
	"github.com/RezaEskandarii/cronctl/types"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func newEventsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect and manage scheduled jobs",
	}
	cmd.AddCommand(
		newEventsListCmd(opts),
		newEventsDueCmd(opts),
		newEventsScheduleCmd(opts),
		newEventsUnscheduleCmd(opts),
		newEventsDeleteCmd(opts),
		newEventsRunCmd(opts),
		newEventsPurgeCmd(opts),
	)
	return cmd
}

func newEventsListCmd(opts *rootOptions) *cobra.Command {
	var (
		status   string
		page     int
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := state.ParseStatusFilter(status)
			if err != nil {
				return err
			}
			return opts.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				result, err := c.Events.ListJobs(ctx, filter, page, pageSize)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTIMESTAMP\tACTION\tSCHEDULE\tSTATUS\tARGS")
				for _, job := range result.Items {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
						job.ID,
						time.Unix(job.Timestamp, 0).UTC().Format(time.RFC3339),
						job.Action,
						orDash(job.Schedule),
						job.Status,
						encodeArgs(job.Args),
					)
				}
				if err := w.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d, %d jobs\n", result.Page, result.TotalPages, result.TotalItems)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "pending", "Status filter (pending, running, completed, any)")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 50, "Jobs per page")
	return cmd
}

func newEventsDueCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "due",
		Short: "Print the batch of entries a runner would execute now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				entries, err := c.Dispatcher.ListDueJobs(ctx)
				if err != nil {
					return err
				}
				if entries == nil {
					entries = []types.QueueEntry{}
				}
				return writeJSON(cmd, entries)
			})
		},
	}
}

func newEventsScheduleCmd(opts *rootOptions) *cobra.Command {
	var (
		action   string
		at       string
		schedule string
		args     string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a one-shot or recurring job",
		Example: `  cronctl events schedule --action send_digest --at now
  cronctl events schedule --action rebuild_index --at 2024-03-01T12:00:00Z --schedule hourly
  cronctl events schedule --action notify --at +90s --args '["ops", 3]'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			timestamp, err := parseTimestamp(at, time.Now())
			if err != nil {
				return err
			}
			jobArgs, err := parseArgs(args)
			if err != nil {
				return err
			}
			return opts.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				params := types.JobParams{Timestamp: timestamp, Action: action, Args: jobArgs}
				if schedule != "" {
					interval, ok := c.Schedules.Interval(schedule)
					if !ok {
						return errors.Newf("unknown schedule %q", schedule)
					}
					params.Schedule = schedule
					params.Interval = interval
				}

				id, err := c.Events.Schedule(ctx, params)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scheduled job %d at %d\n", id, timestamp)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "Action to run")
	cmd.Flags().StringVar(&at, "at", "now", "First run: now, a unix timestamp, RFC3339, or +duration")
	cmd.Flags().StringVar(&schedule, "schedule", "", "Named schedule for recurring jobs (hourly, daily, ...)")
	cmd.Flags().StringVar(&args, "args", "", "Arguments as a JSON array")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func newEventsUnscheduleCmd(opts *rootOptions) *cobra.Command {
	var (
		action string
		args   string
	)
	cmd := &cobra.Command{
		Use:   "unschedule",
		Short: "Remove every pending firing of an action",
		Long:  "Remove every pending firing of an action, or only those with the given arguments.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var jobArgs []any
			if cmd.Flags().Changed("args") {
				var err error
				if jobArgs, err = parseArgs(args); err != nil {
					return err
				}
			}
			return opts.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				removed, err := c.Events.UnscheduleHook(ctx, action, jobArgs)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d jobs\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", "", "Action to unschedule")
	cmd.Flags().StringVar(&args, "args", "", "Only firings with these arguments, as a JSON array")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func newEventsDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Complete a pending job by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid job id %q", args[0])
			}
			return opts.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				if _, err := c.Events.GetJobByID(ctx, id); err != nil {
					if errors.Is(err, store.ErrJobNotFound) {
						return errors.Newf("no pending job with id %d", id)
					}
					return err
				}
				if _, err := c.Events.DeleteByID(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted job %d\n", id)
				return nil
			})
		},
	}
}

func newEventsRunCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "run <timestamp> <action-hashed> <instance>",
		Short: "Run one job by its identity and print the outcome as JSON",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			timestamp, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid timestamp %q", args[0])
			}
			return opts.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				result, err := c.Dispatcher.RunJob(ctx, timestamp, args[1], args[2], force)
				response := dispatch.NewResponse(result, err)
				if err := writeJSON(cmd, response); err != nil {
					return err
				}
				if response.Error != nil {
					return errors.Newf("run refused with status %d", response.HTTPStatus())
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Run even if not yet due and skip the concurrency locks")
	return cmd
}

func newEventsPurgeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete completed jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withContainer(cmd, func(ctx context.Context, c *app.Container) error {
				purged, err := c.Events.PurgeCompleted(ctx, true)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d completed jobs\n", purged)
				return nil
			})
		},
	}
}

// parseTimestamp accepts "now", a unix timestamp, an RFC3339 time, or a
// duration relative to now prefixed with "+".
func parseTimestamp(value string, now time.Time) (int64, error) {
	switch {
	case value == "" || value == "now":
		return now.Unix(), nil
	case strings.HasPrefix(value, "+"):
		d, err := time.ParseDuration(value[1:])
		if err != nil {
			return 0, errors.Wrapf(err, "invalid relative time %q", value)
		}
		return now.Add(d).Unix(), nil
	}
	if ts, err := strconv.ParseInt(value, 10, 64); err == nil {
		return ts, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0, errors.Newf("invalid time %q, want now, a unix timestamp, RFC3339 or +duration", value)
	}
	return t.Unix(), nil
}

// parseArgs decodes a JSON array. An empty string means no arguments.
func parseArgs(value string) ([]any, error) {
	if strings.TrimSpace(value) == "" {
		return []any{}, nil
	}
	args, err := types.DecodeArgs([]byte(value))
	if err != nil {
		return nil, errors.Wrap(err, "args must be a JSON array")
	}
	return args, nil
}

func encodeArgs(args []any) string {
	payload, err := types.EncodeArgs(args)
	if err != nil {
		return "?"
	}
	return string(payload)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
