package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newExtendCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "extend <job-id> [directive]",
		Short: "Continue from the result of a finished job",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				parentID, err := s.resolveJobID(args[0])
				if err != nil {
					return err
				}
				var directive string
				if len(args) > 1 {
					directive = args[1]
				}
				job, err := s.coord.Extend(runCtx, parentID, directive)
				if err != nil {
					return rejected(err)
				}
				return ctx.finishJob(runCtx, cmd, s, job.ID)
			})
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Start a new attempt on a failed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				id, err := s.resolveJobID(args[0])
				if err != nil {
					return err
				}
				if _, err := s.coord.Resubmit(runCtx, id); err != nil {
					return err
				}
				return ctx.finishJob(runCtx, cmd, s, id)
			})
		},
	}
}
