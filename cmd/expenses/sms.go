package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/expense-sync/internal/inbox"
	"github.com/dvloznov/expense-sync/internal/sms"
)

func (c *cli) newSMSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sms",
		Short: "Detect transactions in bank SMS notifications",
	}
	cmd.AddCommand(
		c.newSMSParseCmd(),
		c.newSMSAddCmd(),
		c.newSMSImportBackupCmd(),
		c.newSMSWatchCmd(),
	)
	return cmd
}

func (c *cli) newSMSParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <text>",
		Short: "Show what would be extracted from a message, without storing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			res := sms.NewExtractor().Extract(strings.Join(args, " "))
			if !res.Matched {
				fmt.Fprintln(out, "No transaction detected")
				return nil
			}
			tx := res.Transaction
			fmt.Fprintf(out, "Rule:      %s\n", res.Rule)
			fmt.Fprintf(out, "Amount:    %s\n", tx.Amount.StringFixed(2))
			fmt.Fprintf(out, "Direction: %s\n", tx.Direction)
			fmt.Fprintf(out, "Detail:    %s\n", tx.Detail)
			return nil
		},
	}
}

func (c *cli) newSMSAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <text>",
		Short: "Store the transaction detected in a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, out io.Writer) error {
				body := strings.Join(args, " ")
				msg := &inbox.Message{
					ID:     inbox.MessageID(string(inbox.SourceManual), body),
					Source: inbox.SourceManual,
					Body:   body,
				}

				queue, err := a.startInbox(ctx)
				if err != nil {
					return err
				}
				err = queue.Publish(ctx, msg)
				if stopErr := queue.Stop(ctx); stopErr != nil {
					return stopErr
				}
				if errors.Is(err, inbox.ErrDuplicate) {
					fmt.Fprintln(out, "Message already processed")
					return nil
				}
				if err != nil {
					return err
				}

				stored, err := a.messages.GetMessage(ctx, msg.ID)
				if err != nil {
					return err
				}
				switch stored.Status {
				case inbox.MessageStatusMatched:
					fmt.Fprintf(out, "Added transaction %s (%s)\n", stored.TransactionID, stored.Rule)
				case inbox.MessageStatusFailed:
					return fmt.Errorf("processing failed: %s", stored.Error)
				default:
					fmt.Fprintln(out, "No transaction detected")
				}
				return nil
			})
		},
	}
}

func (c *cli) newSMSImportBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-backup <file>",
		Short: "Process the inbox messages of an SMS backup export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			msgs, err := inbox.ReadBackup(f)
			if err != nil {
				return err
			}

			return c.run(cmd, func(ctx context.Context, a *app, out io.Writer) error {
				queue, err := a.startInbox(ctx)
				if err != nil {
					return err
				}

				var published, duplicates int
				for _, msg := range msgs {
					err := queue.Publish(ctx, msg)
					if errors.Is(err, inbox.ErrDuplicate) {
						duplicates++
						continue
					}
					if err != nil {
						_ = queue.Stop(ctx)
						return err
					}
					published++
				}
				if err := queue.Stop(ctx); err != nil {
					return err
				}

				matched := 0
				for _, msg := range msgs {
					stored, err := a.messages.GetMessage(ctx, msg.ID)
					if err == nil && stored.Status == inbox.MessageStatusMatched {
						matched++
					}
				}
				fmt.Fprintf(out, "Processed %d message(s), skipped %d already seen\n", published, duplicates)
				fmt.Fprintf(out, "%d transaction(s) detected so far from this backup\n", matched)
				return nil
			})
		},
	}
}

func (c *cli) newSMSWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Process message files dropped into the inbox directory until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, func(ctx context.Context, a *app, out io.Writer) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				dir := a.cfg.SMS.InboxDir
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create inbox dir: %w", err)
				}

				queue, err := a.startInbox(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Watching %s for *%s files\n", dir, inbox.MessageExt)

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					return inbox.NewDirWatcher(dir, queue).Run(gctx)
				})
				g.Go(func() error {
					<-gctx.Done()
					return queue.Stop(context.WithoutCancel(gctx))
				})
				return g.Wait()
			})
		},
	}
}
