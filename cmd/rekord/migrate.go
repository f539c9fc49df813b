package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rekord/internal/cli"
	"rekord/internal/config"
	"rekord/internal/log"
	"rekord/internal/storage"
)

func newMigrateCmd() *cobra.Command {
	var demo bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the local SQLite schema",
		Long: `Applies the embedded schema migrations to the SQLite database named by DB_DSN.
ODBC data sources own their schema and are never migrated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadAndValidateConfig()
			if err != nil {
				return err
			}
			if cfg.DBDriver != config.DriverSQLite {
				return fmt.Errorf("migrate requires DB_DRIVER=%s, got %q", config.DriverSQLite, cfg.DBDriver)
			}
			logger := cli.SetupLogger(cfg, logFormat, os.Stderr).WithComponent(log.ComponentStorage)

			if err := storage.RunMigrations(cfg.DBDSN); err != nil {
				return err
			}
			logger.Info("Migrations applied", log.FieldOperation, log.OpMigrate, "path", cfg.DBDSN)

			if demo {
				if err := storage.LoadDemoData(cmd.Context(), cfg.DBDSN); err != nil {
					return err
				}
				logger.Info("Demo data loaded", "path", cfg.DBDSN)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&demo, "demo", false, "also insert the demo data set")
	return cmd
}
