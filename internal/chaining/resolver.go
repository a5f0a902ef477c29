package chaining

import (
	"strings"

	"atelier/internal/jobs"
	"atelier/internal/services"
)

// JobReader looks up registered jobs.
type JobReader interface {
	Get(id string) (jobs.Job, bool)
}

// Resolver turns a parent job into a continuation request.
type Resolver struct {
	jobs JobReader
}

// NewResolver returns a resolver over registry.
func NewResolver(registry JobReader) *Resolver {
	return &Resolver{jobs: registry}
}

// Extend returns a request continuing parentJobID with an extra directive.
// The parent must exist and be done. The child keeps the parent's kind, tier
// and output hints, and is priced like any other request.
func (r *Resolver) Extend(parentJobID, directive string) (jobs.Request, error) {
	parentJobID = strings.TrimSpace(parentJobID)
	if parentJobID == "" {
		return jobs.Request{}, services.Wrap(services.ErrChain, "chaining", "extend", "parent job id is required", nil)
	}
	parent, ok := r.jobs.Get(parentJobID)
	if !ok {
		return jobs.Request{}, services.Wrap(services.ErrChain, "chaining", "extend", "parent job "+parentJobID+" not found", nil)
	}
	if parent.Status != jobs.StatusDone || parent.ResultRef == "" {
		return jobs.Request{}, services.Wrap(services.ErrChain, "chaining", "extend",
			"parent job "+parentJobID+" is "+string(parent.Status)+", not done", nil)
	}
	return jobs.Request{
		Kind:        parent.Kind,
		InputText:   strings.TrimSpace(directive),
		References:  []jobs.Reference{{Handle: parent.ResultRef, Role: jobs.RoleContinuation}},
		Tier:        parent.Tier,
		Resolution:  parent.Resolution,
		AspectRatio: parent.AspectRatio,
		ParentJobID: parent.ID,
	}, nil
}
