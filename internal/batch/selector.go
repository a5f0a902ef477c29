package batch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"atelier/internal/jobs"
	"atelier/internal/services"
)

// Submitter accepts a single submission.
type Submitter interface {
	Submit(ctx context.Context, req jobs.Request) (jobs.Job, error)
}

// ActivityChecker reports whether an asset already has work in flight.
type ActivityChecker interface {
	ActiveForSource(assetID string) bool
}

// Shared is the configuration applied to every asset in a batch.
type Shared struct {
	Kind        jobs.Kind
	Tier        jobs.Tier
	InputText   string
	Role        jobs.Role
	Resolution  string
	AspectRatio string
}

// Outcome is the result of submitting one asset.
type Outcome struct {
	AssetID string
	Job     jobs.Job
	Err     error
}

// Selector tracks the assets chosen for a batch.
type Selector struct {
	mu       sync.Mutex
	selected map[string]struct{}
	active   ActivityChecker
}

// NewSelector returns an empty selection.
func NewSelector(active ActivityChecker) *Selector {
	return &Selector{selected: make(map[string]struct{}), active: active}
}

// Toggle adds or removes assetID and reports whether it is now selected.
func (s *Selector) Toggle(assetID string) bool {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.selected[assetID]; ok {
		delete(s.selected, assetID)
		return false
	}
	s.selected[assetID] = struct{}{}
	return true
}

// Selection returns the selected asset ids in sorted order.
func (s *Selector) Selection() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectionLocked()
}

// Clear empties the selection.
func (s *Selector) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.selected)
}

// CanSubmit is true when the selection is non-empty and none of its assets
// has a queued or processing job.
func (s *Selector) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockedLocked() == "" && len(s.selected) > 0
}

// Submit issues one submission per selected asset. Assets that were accepted
// leave the selection; rejected ones stay selected. The returned error is
// non-nil only when nothing could be attempted.
func (s *Selector) Submit(ctx context.Context, submitter Submitter, shared Shared) ([]Outcome, error) {
	s.mu.Lock()
	if len(s.selected) == 0 {
		s.mu.Unlock()
		return nil, services.Wrap(services.ErrValidation, "batch", "submit", "no assets selected", nil)
	}
	if blocked := s.blockedLocked(); blocked != "" {
		s.mu.Unlock()
		return nil, services.Wrap(services.ErrConflict, "batch", "submit",
			fmt.Sprintf("asset %s already has a job in flight", blocked), nil)
	}
	assets := s.selectionLocked()
	s.mu.Unlock()

	role := shared.Role
	if role == "" {
		role = jobs.RoleSource
	}
	outcomes := make([]Outcome, 0, len(assets))
	for _, assetID := range assets {
		job, err := submitter.Submit(ctx, jobs.Request{
			Kind:          shared.Kind,
			Tier:          shared.Tier,
			InputText:     shared.InputText,
			References:    []jobs.Reference{{Handle: assetID, Role: role}},
			Resolution:    shared.Resolution,
			AspectRatio:   shared.AspectRatio,
			SourceAssetID: assetID,
		})
		outcomes = append(outcomes, Outcome{AssetID: assetID, Job: job, Err: err})
		if err == nil {
			s.mu.Lock()
			delete(s.selected, assetID)
			s.mu.Unlock()
		}
	}
	return outcomes, nil
}

func (s *Selector) selectionLocked() []string {
	out := make([]string, 0, len(s.selected))
	for id := range s.selected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Selector) blockedLocked() string {
	if s.active == nil {
		return ""
	}
	for _, id := range s.selectionLocked() {
		if s.active.ActiveForSource(id) {
			return id
		}
	}
	return ""
}
