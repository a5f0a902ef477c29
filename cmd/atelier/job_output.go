package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"atelier/internal/jobs"
)

// jobView is a job plus the values derived from its chain.
type jobView struct {
	jobs.Job
	ErrorMessage         string   `json:"error_message,omitempty"`
	ChainDurationSeconds float64  `json:"chain_duration_seconds,omitempty"`
	Lineage              []string `json:"lineage,omitempty"`
}

func newJobView(registry *jobs.Registry, job jobs.Job) jobView {
	view := jobView{Job: job, ErrorMessage: job.ErrorKind.Message()}
	if job.ParentJobID != "" || job.DurationSeconds > 0 {
		view.ChainDurationSeconds = jobs.ChainDuration(registry, job.ID)
	}
	if lineage := jobs.Lineage(registry, job.ID); len(lineage) > 1 {
		view.Lineage = lineage
	}
	return view
}

func (c *commandContext) printJob(cmd *cobra.Command, registry *jobs.Registry, job jobs.Job) error {
	view := newJobView(registry, job)
	return c.emit(cmd, view, func() error {
		out := cmd.OutOrStdout()
		colorize := shouldColorize(out)
		fmt.Fprintln(out, renderStatusLine("Job", jobStatusKind(job), job.ID, colorize))
		lines := [][2]string{
			{"Kind", titleLabel(string(job.Kind))},
			{"Tier", titleLabel(string(job.Tier))},
			{"Status", statusLabel(job)},
			{"Attempt", strconv.Itoa(job.Attempt)},
			{"Credits", strconv.FormatInt(job.CostCredits, 10)},
			{"Directive", job.InputText},
			{"Resolution", job.Resolution},
			{"Aspect ratio", job.AspectRatio},
			{"Parent", job.ParentJobID},
			{"Source asset", job.SourceAssetID},
			{"Result", job.ResultRef},
			{"Created", formatTime(job.CreatedAt)},
		}
		if job.CompletedAt != nil {
			lines = append(lines, [2]string{"Completed", formatTime(*job.CompletedAt)})
		}
		for i, ref := range job.References {
			lines = append(lines, [2]string{fmt.Sprintf("Reference %d", i+1), fmt.Sprintf("%s (%s)", ref.Handle, ref.Role)})
		}
		if view.ChainDurationSeconds > 0 {
			lines = append(lines, [2]string{"Chain duration", strconv.FormatFloat(view.ChainDurationSeconds, 'f', -1, 64) + "s"})
		}
		if len(view.Lineage) > 0 {
			short := make([]string, len(view.Lineage))
			for i, id := range view.Lineage {
				short[i] = shortID(id)
			}
			lines = append(lines, [2]string{"Lineage", strings.Join(short, " -> ")})
		}
		for _, line := range lines {
			if strings.TrimSpace(line[1]) == "" {
				continue
			}
			fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, line[0]+":", line[1])
		}
		if view.ErrorMessage != "" {
			fmt.Fprintln(out, renderStatusLine("Error", jobStatusKind(job), view.ErrorMessage, colorize))
		}
		return nil
	})
}
