package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"atelier/internal/config"
	"atelier/internal/jobs"
	"atelier/internal/services"
)

type submitFlags struct {
	kind        string
	tier        string
	refs        []string
	files       []string
	resolution  string
	aspectRatio string
}

func (f *submitFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.kind, "kind", "k", string(jobs.KindImage), "Media kind: image, video or audio")
	cmd.Flags().StringVarP(&f.tier, "tier", "t", string(jobs.TierStandard), "Capability tier: standard or premium")
	cmd.Flags().StringArrayVar(&f.refs, "ref", nil, "Reference handle, optionally role=handle (repeatable)")
	cmd.Flags().StringArrayVar(&f.files, "file", nil, "File to ingest as a reference, optionally role=path (repeatable)")
	cmd.Flags().StringVar(&f.resolution, "resolution", "", "Output resolution, e.g. 720p")
	cmd.Flags().StringVar(&f.aspectRatio, "aspect", "", "Output aspect ratio, e.g. 16:9")
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	flags := &submitFlags{}
	cmd := &cobra.Command{
		Use:   "submit [directive]",
		Short: "Submit a generation job and wait for it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, func(runCtx context.Context, s *session) error {
				req, err := flags.request(runCtx, s, firstArg(args))
				if err != nil {
					return err
				}
				job, err := s.coord.Submit(runCtx, req)
				if err != nil {
					return rejected(err)
				}
				return ctx.finishJob(runCtx, cmd, s, job.ID)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func (f *submitFlags) request(ctx context.Context, s *session, directive string) (jobs.Request, error) {
	kind, ok := jobs.ParseKind(f.kind)
	if !ok {
		return jobs.Request{}, fmt.Errorf("unknown kind %q", f.kind)
	}
	tier, ok := jobs.ParseTier(f.tier)
	if !ok {
		return jobs.Request{}, fmt.Errorf("unknown tier %q", f.tier)
	}
	refs := make([]jobs.Reference, 0, len(f.refs)+len(f.files))
	for _, raw := range f.refs {
		role, handle := splitRole(raw, jobs.RoleStyle)
		refs = append(refs, jobs.Reference{Handle: handle, Role: role})
	}
	for _, raw := range f.files {
		role, path := splitRole(raw, jobs.RoleSource)
		ref, err := ingestFile(ctx, s, path, role)
		if err != nil {
			return jobs.Request{}, err
		}
		refs = append(refs, ref)
	}
	return jobs.Request{
		Kind:        kind,
		Tier:        tier,
		InputText:   directive,
		References:  refs,
		Resolution:  strings.ToLower(strings.TrimSpace(f.resolution)),
		AspectRatio: strings.TrimSpace(f.aspectRatio),
	}, nil
}

// rejected notes that a refused submission left no job and no charge.
func rejected(err error) error {
	if services.IsPreflight(err) {
		return fmt.Errorf("submission rejected, nothing was charged: %w", err)
	}
	return err
}

// finishJob waits for dispatched work and prints the job's final state.
func (c *commandContext) finishJob(ctx context.Context, cmd *cobra.Command, s *session, id string) error {
	if err := s.coord.Wait(ctx); err != nil {
		return err
	}
	job, ok := s.registry.Get(id)
	if !ok {
		return fmt.Errorf("job %s disappeared", id)
	}
	return c.printJob(cmd, s.registry, job)
}

func ingestFile(ctx context.Context, s *session, path string, role jobs.Role) (jobs.Reference, error) {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return jobs.Reference{}, err
	}
	file, err := os.Open(expanded)
	if err != nil {
		return jobs.Reference{}, fmt.Errorf("open reference %q: %w", path, err)
	}
	defer file.Close()
	return s.assets.Ingest(ctx, file, role)
}

// splitRole parses "role=value"; a bare value gets fallback.
func splitRole(raw string, fallback jobs.Role) (jobs.Role, string) {
	raw = strings.TrimSpace(raw)
	if role, value, ok := strings.Cut(raw, "="); ok && !strings.Contains(role, "/") {
		return jobs.ParseRole(role), strings.TrimSpace(value)
	}
	return fallback, raw
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
