package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"atelier/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage jobs in the session",
	}
	cmd.AddCommand(newJobsListCommand(ctx))
	cmd.AddCommand(newJobsShowCommand(ctx))
	cmd.AddCommand(newJobsSelectCommand(ctx))
	cmd.AddCommand(newJobsRemoveCommand(ctx))
	return cmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(_ context.Context, s *session) error {
				list := s.registry.List()
				if statusFilter != "" {
					filtered := list[:0]
					for _, job := range list {
						if string(job.Status) == statusFilter {
							filtered = append(filtered, job)
						}
					}
					list = filtered
				}
				var selectedID string
				if selected, ok := s.registry.Selected(); ok {
					selectedID = selected.ID
				}
				return ctx.emit(cmd, list, func() error {
					if len(list) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
						return nil
					}
					fmt.Fprint(cmd.OutOrStdout(), renderJobTable(list, selectedID))
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show jobs with this status")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show [job-id]",
		Short: "Show one job; defaults to the selected job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(_ context.Context, s *session) error {
				job, err := jobArgOrSelected(s, args)
				if err != nil {
					return err
				}
				return ctx.printJob(cmd, s.registry, job)
			})
		},
	}
}

func newJobsSelectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "select <job-id>",
		Short: "Move the selection cursor to a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				id, err := s.resolveJobID(args[0])
				if err != nil {
					return err
				}
				if err := s.coord.Select(runCtx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Selected %s\n", id)
				return nil
			})
		},
	}
}

func newJobsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id>",
		Short: "Remove a finished job from the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				id, err := s.resolveJobID(args[0])
				if err != nil {
					return err
				}
				removed, err := s.coord.Remove(runCtx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (%s)\n", removed.ID, removed.Status)
				return nil
			})
		},
	}
}

func jobArgOrSelected(s *session, args []string) (jobs.Job, error) {
	if len(args) == 0 {
		job, ok := s.registry.Selected()
		if !ok {
			return jobs.Job{}, fmt.Errorf("no job selected; pass a job id")
		}
		return job, nil
	}
	id, err := s.resolveJobID(args[0])
	if err != nil {
		return jobs.Job{}, err
	}
	job, _ := s.registry.Get(id)
	return job, nil
}
