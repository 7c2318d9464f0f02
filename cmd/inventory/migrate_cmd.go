package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BerniPi/BGBB-IKT/internal/persistence/sqlite/migration"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd, opts, func(m migrator) error {
					applied, err := m.Apply(cmd.Context())
					for _, a := range applied {
						fmt.Fprintf(cmd.OutOrStdout(), "applied %05d %s (%s)\n", a.Version, a.Source, a.Duration)
					}
					if err == nil && len(applied) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
					}
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd, opts, func(m migrator) error {
					status, err := m.Status(cmd.Context())
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintf(w, "current version:\t%d\n", status.CurrentVersion)
					for _, s := range status.Migrations {
						state := "pending"
						if s.Applied {
							state = "applied " + s.AppliedAt.Format("2006-01-02 15:04:05")
						}
						fmt.Fprintf(w, "%05d\t%s\t%s\n", s.Version, s.Source, state)
					}
					return w.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd, opts, func(m migrator) error {
					return m.Down(cmd.Context())
				})
			},
		},
	)
	return cmd
}

type migrator = *migration.Migrator

func withMigrator(cmd *cobra.Command, opts *rootOptions, fn func(m migrator) error) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	storage, err := openStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer storage.Close()

	m, err := storage.Migrator()
	if err != nil {
		return err
	}
	return fn(m)
}
