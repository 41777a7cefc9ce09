package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	infraBQ "github.com/dvloznov/expense-sync/internal/infra/bigquery"
	"github.com/dvloznov/expense-sync/internal/logger"
)

func (c *cli) newExportBigQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-bigquery",
		Short: "Sync, then stream the combined timeline into BigQuery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, out io.Writer) error {
				bq := a.cfg.BigQuery
				if bq.Project == "" {
					return errors.New("bigquery.project is required")
				}

				tl := a.engine.SyncWithPartner(ctx, a.cfg.User.Email)
				if tl.Degraded {
					log := logger.FromContext(ctx)
					log.Warn().Err(tl.Reason).Msg("Exporting a degraded timeline")
				}

				exporter, err := infraBQ.NewBigQueryTimelineExporter(ctx, bq.Project, bq.Dataset, bq.Table)
				if err != nil {
					return err
				}
				defer exporter.Close()

				n, err := exporter.ExportTimeline(ctx, tl.Transactions)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Exported %d row(s) to %s.%s.%s\n", n, bq.Project, bq.Dataset, bq.Table)
				return nil
			})
		},
	}
}
