package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func (c *cli) newPartnerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partner",
		Short: "Manage Partner Mode",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "share <email>",
			Short: "Share your transactions with a partner",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.run(cmd, func(ctx context.Context, a *app, out io.Writer) error {
					h, err := a.linker.Share(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Shared %s with %s\n", h, args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "link <email>",
			Short: "Link to the document a partner shared with you",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.run(cmd, func(ctx context.Context, a *app, out io.Writer) error {
					h, err := a.linker.Link(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Linked to %s from %s\n", h, args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "reshare",
			Short: "Share again with the current partner",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.run(cmd, func(ctx context.Context, a *app, out io.Writer) error {
					h, err := a.linker.Reshare(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Shared %s again\n", h)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "disable",
			Short: "Turn Partner Mode off",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.run(cmd, func(ctx context.Context, a *app, out io.Writer) error {
					if err := a.manager.Disable(ctx); err != nil {
						return err
					}
					fmt.Fprintln(out, "Partner Mode disabled")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the Partner Mode settings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.run(cmd, func(ctx context.Context, a *app, out io.Writer) error {
					s := a.manager.GetSettings(ctx)
					if !s.Enabled {
						fmt.Fprintln(out, "Partner Mode: off")
						return nil
					}
					fmt.Fprintln(out, "Partner Mode: on")
					fmt.Fprintf(out, "Partner:      %s\n", s.PartnerEmail)
					if s.EnabledAt != nil {
						fmt.Fprintf(out, "Since:        %s\n", s.EnabledAt.Format("2006-01-02 15:04"))
					}
					if s.PartnerFileHandle != "" {
						fmt.Fprintf(out, "Partner file: %s\n", s.PartnerFileHandle)
					} else {
						fmt.Fprintln(out, "Partner file: not found yet")
					}
					return nil
				})
			},
		},
	)
	return cmd
}
