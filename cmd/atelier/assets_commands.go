package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"atelier/internal/jobs"
)

func newAssetsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Manage reference assets",
	}
	cmd.AddCommand(newAssetsIngestCommand(ctx))
	return cmd
}

func newAssetsIngestCommand(ctx *commandContext) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Store files and print their reference handles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				refs := make([]jobs.Reference, 0, len(args))
				for _, path := range args {
					ref, err := ingestFile(runCtx, s, path, jobs.ParseRole(role))
					if err != nil {
						return err
					}
					refs = append(refs, ref)
				}
				return ctx.emit(cmd, refs, func() error {
					for i, ref := range refs {
						fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", args[i], ref.Role, ref.Handle)
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", string(jobs.RoleSource), "Role recorded on the reference")
	return cmd
}
