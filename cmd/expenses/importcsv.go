package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dvloznov/expense-sync/internal/csvimport"
)

func (c *cli) newImportCSVCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-csv <file>",
		Short: "Add the transactions of a spreadsheet export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			txs, err := csvimport.NewParser().Parse(f)
			if err != nil {
				return err
			}

			return c.run(cmd, func(ctx context.Context, a *app, out io.Writer) error {
				// Add prepends, so walk backwards to keep the sheet order on top.
				for i := len(txs) - 1; i >= 0; i-- {
					if err := a.local.Add(ctx, txs[i]); err != nil {
						return err
					}
				}
				fmt.Fprintf(out, "Imported %d transaction(s)\n", len(txs))
				return nil
			})
		},
	}
}
