package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newCreditsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and top up the credit balance",
	}
	cmd.AddCommand(newCreditsBalanceCommand(ctx))
	cmd.AddCommand(newCreditsLedgerCommand(ctx))
	cmd.AddCommand(newCreditsGrantCommand(ctx))
	cmd.AddCommand(newCreditsPricesCommand(ctx))
	return cmd
}

func newCreditsBalanceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the spendable balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(_ context.Context, s *session) error {
				var reserved int64
				open := s.ledger.Open()
				for _, res := range open {
					reserved += res.Amount
				}
				view := struct {
					Balance  int64 `json:"balance"`
					Reserved int64 `json:"reserved"`
					Open     int   `json:"open_reservations"`
				}{s.ledger.Balance(), reserved, len(open)}
				return ctx.emit(cmd, view, func() error {
					fmt.Fprintf(cmd.OutOrStdout(), "%d credits available", view.Balance)
					if view.Open > 0 {
						fmt.Fprintf(cmd.OutOrStdout(), " (%d reserved by %d jobs)", view.Reserved, view.Open)
					}
					fmt.Fprintln(cmd.OutOrStdout())
					return nil
				})
			})
		},
	}
}

func newCreditsLedgerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ledger",
		Short: "Show every balance change in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(_ context.Context, s *session) error {
				entries := s.ledger.Entries()
				return ctx.emit(cmd, entries, func() error {
					if len(entries) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "Ledger is empty")
						return nil
					}
					fmt.Fprint(cmd.OutOrStdout(), renderLedgerTable(entries))
					return nil
				})
			})
		},
	}
}

func newCreditsGrantCommand(ctx *commandContext) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "grant <amount>",
		Short: "Add credits to the balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[0], err)
			}
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				if err := s.coord.Grant(runCtx, amount, note); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Granted %d credits; balance %d\n", amount, s.ledger.Balance())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "manual grant", "Note recorded in the ledger")
	return cmd
}

type priceView struct {
	Kind    string `json:"kind"`
	Tier    string `json:"tier"`
	Credits int64  `json:"credits"`
}

func newCreditsPricesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prices",
		Short: "Show the credit cost of each kind and tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(_ context.Context, s *session) error {
				entries := s.pricing.Entries()
				views := make([]priceView, 0, len(entries))
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					views = append(views, priceView{Kind: string(e.Kind), Tier: string(e.Tier), Credits: e.Credits})
					rows = append(rows, []string{titleLabel(string(e.Kind)), titleLabel(string(e.Tier)), strconv.FormatInt(e.Credits, 10)})
				}
				return ctx.emit(cmd, views, func() error {
					fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Kind", "Tier", "Credits"}, rows,
						[]columnAlignment{alignLeft, alignLeft, alignRight}))
					return nil
				})
			})
		},
	}
}
