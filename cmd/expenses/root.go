package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dvloznov/expense-sync/internal/config"
	"github.com/dvloznov/expense-sync/internal/logger"
	remotemem "github.com/dvloznov/expense-sync/internal/remote/inmemory"
)

// rootOptions are the process-level dependencies of the command tree.
type rootOptions struct {
	// server backs the "memory" remote backend. A fresh one is used when nil.
	server *remotemem.Server
}

// cli carries the loaded configuration from the root hook to subcommands.
type cli struct {
	opts rootOptions
	cfg  config.Config
}

func newRootCmd(opts rootOptions) *cobra.Command {
	c := &cli{opts: opts}

	root := &cobra.Command{
		Use:          "expenses",
		Short:        "Sync personal transactions across devices and with a partner",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg

			log := logger.WithLevel(logger.New(), cfg.Log.Level)
			log = logger.WithCommand(log, cmd.CommandPath(), cfg.User.Email)
			cmd.SetContext(logger.WithContext(cmd.Context(), log))
			return nil
		},
	}

	root.AddCommand(
		c.newSyncCmd(),
		c.newListCmd(),
		c.newPartnerCmd(),
		c.newSMSCmd(),
		c.newImportCSVCmd(),
		c.newExportBigQueryCmd(),
		c.newMigrateCmd(),
	)
	return root
}

// open validates the configuration and builds the components.
func (c *cli) open(ctx context.Context) (*app, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return newApp(ctx, c.cfg, c.opts.server)
}

// run opens the app, hands it to fn and closes it.
func (c *cli) run(cmd *cobra.Command, fn func(ctx context.Context, a *app, out io.Writer) error) error {
	ctx := cmd.Context()
	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Msg("Failed to close resources")
		}
	}()
	return fn(ctx, a, cmd.OutOrStdout())
}
