package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dvloznov/expense-sync/internal/domain"
	"github.com/dvloznov/expense-sync/internal/logger"
	"github.com/dvloznov/expense-sync/internal/syncengine"
)

func (c *cli) newSyncCmd() *cobra.Command {
	var withPartner bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Merge local transactions with the cloud copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, out io.Writer) error {
				if !withPartner {
					printTimeline(out, a.engine.SyncOwn(ctx))
					return nil
				}

				tl := a.engine.SyncWithPartner(ctx, a.cfg.User.Email)
				if err := a.engine.PublishSharedSnapshot(ctx, a.cfg.User.Email); err != nil {
					log := logger.FromContext(ctx)
					log.Warn().Err(err).Msg("Failed to publish shared snapshot")
				}
				printTimeline(out, tl)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&withPartner, "partner", false, "include the partner's shared transactions")
	return cmd
}

func (c *cli) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the transactions stored on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, out io.Writer) error {
				txs, err := a.local.GetAll(ctx)
				if err != nil {
					return err
				}
				printTransactions(out, txs)
				return nil
			})
		},
	}
}

func printTimeline(out io.Writer, tl syncengine.Timeline) {
	if tl.Degraded {
		fmt.Fprintf(out, "Showing offline data: %v\n", tl.Reason)
	}
	printTransactions(out, tl.Transactions)
}

func printTransactions(out io.Writer, txs []domain.Transaction) {
	if len(txs) == 0 {
		fmt.Fprintln(out, "No transactions.")
		return
	}
	for _, tx := range txs {
		fmt.Fprintf(out, "%s  %-2s %12s  %-8s %-16s %s",
			tx.OccurredAt.Format("2006-01-02"),
			tx.Direction,
			tx.Amount.StringFixed(2),
			tx.Status,
			tx.Category,
			tx.Detail,
		)
		if tx.OwnerEmail != "" {
			fmt.Fprintf(out, "  [%s]", tx.OwnerEmail)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "%d transaction(s)\n", len(txs))
}
