package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iago/reportflow/internal/config"
	"github.com/iago/reportflow/internal/repository"
)

func newMigrateCmd() *cobra.Command {
	var (
		printOnly bool
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		Long: `Apply the reportflow schema to the database named by REPORTFLOW_DATABASE_URL.

The schema only creates missing tables and indexes, so running it again is safe.

Examples:
  reportctl migrate
  reportctl migrate --print > schema.sql`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if printOnly {
				_, err := fmt.Fprint(cmd.OutOrStdout(), repository.Schema())
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("REPORTFLOW_DATABASE_URL is not set")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			pool, err := repository.NewPostgresPool(ctx, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := repository.Migrate(ctx, pool); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return err
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the schema instead of applying it")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Time allowed for connecting and migrating")
	return cmd
}
