package main

import (
	"github.com/spf13/cobra"

	"github.com/hotelcms/hotelcms/internal/platform/db"
	"github.com/hotelcms/hotelcms/migrations"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database migrations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				if err := db.Migrate(cmd.Context(), cfg.PGDSN, migrations.FS); err != nil {
					return err
				}
				return reportVersion(cmd, cfg.PGDSN)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				if err := db.Rollback(cmd.Context(), cfg.PGDSN, migrations.FS); err != nil {
					return err
				}
				return reportVersion(cmd, cfg.PGDSN)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				return reportVersion(cmd, cfg.PGDSN)
			},
		},
	)
	return cmd
}

func reportVersion(cmd *cobra.Command, dsn string) error {
	version, err := db.Version(cmd.Context(), dsn, migrations.FS)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), map[string]int64{"version": version})
}
