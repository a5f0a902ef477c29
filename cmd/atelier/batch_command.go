package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"atelier/internal/batch"
	"atelier/internal/jobs"
)

type batchResult struct {
	AssetID string `json:"asset_id"`
	JobID   string `json:"job_id,omitempty"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var (
		kind        string
		tier        string
		role        string
		resolution  string
		aspectRatio string
	)
	cmd := &cobra.Command{
		Use:   "batch <asset>... [--directive text]",
		Short: "Submit one job per asset with shared settings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			directive, _ := cmd.Flags().GetString("directive")
			parsedKind, ok := jobs.ParseKind(kind)
			if !ok {
				return fmt.Errorf("unknown kind %q", kind)
			}
			parsedTier, ok := jobs.ParseTier(tier)
			if !ok {
				return fmt.Errorf("unknown tier %q", tier)
			}
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				selector := batch.NewSelector(s.registry)
				seen := make(map[string]struct{}, len(args))
				for _, asset := range args {
					asset = strings.TrimSpace(asset)
					if _, dup := seen[asset]; dup {
						continue
					}
					seen[asset] = struct{}{}
					selector.Toggle(asset)
				}
				outcomes, err := selector.Submit(runCtx, s.coord, batch.Shared{
					Kind:        parsedKind,
					Tier:        parsedTier,
					InputText:   directive,
					Role:        jobs.ParseRole(role),
					Resolution:  strings.ToLower(strings.TrimSpace(resolution)),
					AspectRatio: strings.TrimSpace(aspectRatio),
				})
				if err != nil {
					return err
				}
				if err := s.coord.Wait(runCtx); err != nil {
					return err
				}
				results := make([]batchResult, 0, len(outcomes))
				for _, outcome := range outcomes {
					result := batchResult{AssetID: outcome.AssetID}
					if outcome.Err != nil {
						result.Error = outcome.Err.Error()
					} else if job, ok := s.registry.Get(outcome.Job.ID); ok {
						result.JobID = job.ID
						result.Status = statusLabel(job)
					}
					results = append(results, result)
				}
				return ctx.emit(cmd, results, func() error {
					rows := make([][]string, 0, len(results))
					for _, r := range results {
						rows = append(rows, []string{truncate(r.AssetID, 48), shortID(r.JobID), r.Status, r.Error})
					}
					fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Asset", "Job", "Status", "Error"}, rows,
						[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft}))
					return nil
				})
			})
		},
	}
	cmd.Flags().StringP("directive", "d", "", "Directive applied to every asset")
	cmd.Flags().StringVarP(&kind, "kind", "k", string(jobs.KindImage), "Media kind: image, video or audio")
	cmd.Flags().StringVarP(&tier, "tier", "t", string(jobs.TierStandard), "Capability tier: standard or premium")
	cmd.Flags().StringVar(&role, "role", string(jobs.RoleSource), "Role given to each asset reference")
	cmd.Flags().StringVar(&resolution, "resolution", "", "Output resolution, e.g. 720p")
	cmd.Flags().StringVar(&aspectRatio, "aspect", "", "Output aspect ratio, e.g. 16:9")
	return cmd
}
