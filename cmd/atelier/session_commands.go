package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"atelier/internal/kvstore"
	"atelier/internal/logging"
	"atelier/internal/persistence"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the persisted session",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Drop every job; the credit balance is kept",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				if err := s.coord.Reset(runCtx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session cleared; balance %d credits\n", s.ledger.Balance())
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "discard",
		Short: "Delete the saved snapshot, including an unreadable one",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			kv, err := kvstore.OpenFromConfig(cfg)
			if err != nil {
				if errors.Is(err, kvstore.ErrLocked) {
					return fmt.Errorf("another atelier process owns %s; wait for it to finish", cfg.DatabasePath())
				}
				return err
			}
			defer kv.Close()
			if err := persistence.New(kv, logging.NewNop()).Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Discarded saved session in %s\n", kv.Path())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Summarize the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(_ context.Context, s *session) error {
				counts := map[string]int{}
				for _, job := range s.registry.List() {
					counts[string(job.Status)]++
				}
				summary := struct {
					Jobs               int            `json:"jobs"`
					ByStatus           map[string]int `json:"by_status"`
					Balance            int64          `json:"balance"`
					OpenReservations   int            `json:"open_reservations"`
					NeedsAuthorization bool           `json:"needs_authorization"`
				}{
					Jobs:               s.registry.Len(),
					ByStatus:           counts,
					Balance:            s.ledger.Balance(),
					OpenReservations:   len(s.ledger.Open()),
					NeedsAuthorization: s.gate.NeedsAuthorization(),
				}
				return ctx.emit(cmd, summary, func() error {
					out := cmd.OutOrStdout()
					colorize := shouldColorize(out)
					fmt.Fprintln(out, renderStatusLine("Jobs", statusInfo, fmt.Sprintf("%d total, %d done, %d failed, %d active",
						summary.Jobs, counts["done"], counts["error"], counts["queued"]+counts["processing"]), colorize))
					fmt.Fprintln(out, renderStatusLine("Credits", statusInfo, fmt.Sprintf("%d available", summary.Balance), colorize))
					authKind := statusOK
					if summary.NeedsAuthorization {
						authKind = statusWarn
					}
					fmt.Fprintln(out, renderStatusLine("Needs authorization", authKind, yesNo(summary.NeedsAuthorization), colorize))
					return nil
				})
			})
		},
	})
	return cmd
}
