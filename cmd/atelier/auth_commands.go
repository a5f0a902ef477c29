package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAuthCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the generation service credential",
	}
	cmd.AddCommand(newAuthStatusCommand(ctx))
	cmd.AddCommand(newAuthSelectCommand(ctx))
	cmd.AddCommand(newAuthClearCommand(ctx))
	return cmd
}

func newAuthStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a credential is available",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				has, err := s.creds.HasCredential(runCtx)
				if err != nil {
					return err
				}
				view := struct {
					HasCredential      bool   `json:"has_credential"`
					Source             string `json:"source,omitempty"`
					NeedsAuthorization bool   `json:"needs_authorization"`
					Synthetic          bool   `json:"synthetic"`
				}{has, s.creds.Source(), s.gate.NeedsAuthorization(), s.cfg.Synthetic()}
				return ctx.emit(cmd, view, func() error {
					out := cmd.OutOrStdout()
					colorize := shouldColorize(out)
					credKind := statusOK
					message := "available (" + view.Source + ")"
					if !view.HasCredential {
						credKind = statusWarn
						message = "missing"
					}
					fmt.Fprintln(out, renderStatusLine("Credential", credKind, message, colorize))
					authKind := statusOK
					if view.NeedsAuthorization {
						authKind = statusError
					}
					fmt.Fprintln(out, renderStatusLine("Needs authorization", authKind, yesNo(view.NeedsAuthorization), colorize))
					if view.Synthetic {
						fmt.Fprintln(out, renderStatusLine("Generator", statusInfo, "synthetic (no base_url configured)", colorize))
					}
					return nil
				})
			})
		},
	}
}

func newAuthSelectCommand(ctx *commandContext) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Choose a credential and clear the authorization flag",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				if strings.TrimSpace(key) != "" {
					if err := s.creds.Select(runCtx, key); err != nil {
						return err
					}
				}
				ok, err := s.coord.Authorize(runCtx)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "No credential selected")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Credential ready")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "API key to store instead of prompting")
	return cmd
}

func newAuthClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				if err := s.creds.Clear(runCtx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Stored credential removed")
				return nil
			})
		},
	}
}
