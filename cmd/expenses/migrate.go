package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dvloznov/expense-sync/internal/config"
	"github.com/dvloznov/expense-sync/internal/kv/sqlite"
	"github.com/dvloznov/expense-sync/internal/logger"
)

func (c *cli) newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the local database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if c.cfg.Storage.Driver != config.DriverSQLite {
				fmt.Fprintf(out, "Nothing to migrate for storage driver %q\n", c.cfg.Storage.Driver)
				return nil
			}

			path := c.cfg.Storage.Path
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("create storage dir: %w", err)
			}

			log := logger.FromContext(cmd.Context())
			log.Info().Str("path", path).Msg("Migrating local database")

			if err := sqlite.Migrate(path); err != nil {
				return err
			}
			fmt.Fprintf(out, "Database is up to date: %s\n", path)
			return nil
		},
	}
}
