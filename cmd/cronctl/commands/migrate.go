package commands

import (
	"fmt"

	"github.com/RezaEskandarii/cronctl/internal/db"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the jobs table if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := opts.logger(cmd)
			if err != nil {
				return err
			}
			cfg, err := opts.config()
			if err != nil {
				return err
			}

			conn, dialect, err := db.Open(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := db.Init(cmd.Context(), conn, dialect, log); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", dialect.Name())
			return nil
		},
	}
}
