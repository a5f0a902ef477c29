package assets

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"atelier/internal/config"
	"atelier/internal/jobs"
	"atelier/internal/services"
)

// Ingestor turns raw bytes into an opaque handle.
type Ingestor interface {
	Ingest(ctx context.Context, raw io.Reader) (string, error)
}

// Limits bounds what a job of one tier may carry.
type Limits struct {
	MaxReferences int
	MaxResolution string
}

// Store validates references against tier limits and delegates ingestion.
type Store struct {
	ingestor Ingestor
	limits   map[jobs.Tier]Limits
}

// NewStore wires an ingestor with per-tier limits.
func NewStore(ingestor Ingestor, limits map[jobs.Tier]Limits) *Store {
	cp := make(map[jobs.Tier]Limits, len(limits))
	for tier, l := range limits {
		cp[tier] = l
	}
	return &Store{ingestor: ingestor, limits: cp}
}

// LimitsFromConfig converts the [tiers] section.
func LimitsFromConfig(cfg *config.Config) map[jobs.Tier]Limits {
	return map[jobs.Tier]Limits{
		jobs.TierStandard: {MaxReferences: cfg.Tiers.Standard.MaxReferences, MaxResolution: cfg.Tiers.Standard.MaxResolution},
		jobs.TierPremium:  {MaxReferences: cfg.Tiers.Premium.MaxReferences, MaxResolution: cfg.Tiers.Premium.MaxResolution},
	}
}

// Ingest stores raw input and returns a reference tagged with role.
func (s *Store) Ingest(ctx context.Context, raw io.Reader, role jobs.Role) (jobs.Reference, error) {
	if s.ingestor == nil {
		return jobs.Reference{}, services.Wrap(services.ErrConfiguration, "assets", "ingest", "no ingestor configured", nil)
	}
	handle, err := s.ingestor.Ingest(ctx, raw)
	if err != nil {
		return jobs.Reference{}, fmt.Errorf("ingest asset: %w", err)
	}
	return jobs.Reference{Handle: handle, Role: role}, nil
}

// CapacityFor returns how many references a job of tier may carry. Unknown
// tiers carry none.
func (s *Store) CapacityFor(tier jobs.Tier) int {
	return s.limits[tier].MaxReferences
}

// Validate rejects reference lists longer than the tier allows or holding
// blank handles.
func (s *Store) Validate(refs []jobs.Reference, tier jobs.Tier) error {
	if _, ok := s.limits[tier]; !ok {
		return services.Wrap(services.ErrValidation, "assets", "validate", fmt.Sprintf("unknown tier %q", tier), nil)
	}
	if capacity := s.CapacityFor(tier); len(refs) > capacity {
		return services.Wrap(services.ErrValidation, "assets", "validate",
			fmt.Sprintf("%d references exceed the %s limit of %d", len(refs), tier, capacity), nil)
	}
	for i, ref := range refs {
		if strings.TrimSpace(ref.Handle) == "" {
			return services.Wrap(services.ErrValidation, "assets", "validate", fmt.Sprintf("reference %d has no handle", i), nil)
		}
	}
	return nil
}

// ValidateResolution rejects unknown resolutions and those above the tier
// ceiling. An empty resolution defers to the service default.
func (s *Store) ValidateResolution(resolution string, tier jobs.Tier) error {
	if resolution == "" {
		return nil
	}
	rank := slices.Index(config.Resolutions, resolution)
	if rank < 0 {
		return services.Wrap(services.ErrValidation, "assets", "resolution",
			fmt.Sprintf("unsupported resolution %q", resolution), nil)
	}
	ceiling := slices.Index(config.Resolutions, s.limits[tier].MaxResolution)
	if rank > ceiling {
		return services.Wrap(services.ErrValidation, "assets", "resolution",
			fmt.Sprintf("%s exceeds the %s ceiling of %s", resolution, tier, s.limits[tier].MaxResolution), nil)
	}
	return nil
}

// ValidateAspectRatio rejects ratios outside the supported set. An empty ratio
// defers to the service default.
func ValidateAspectRatio(ratio string) error {
	if ratio == "" || slices.Contains(config.AspectRatios, ratio) {
		return nil
	}
	return services.Wrap(services.ErrValidation, "assets", "aspect_ratio",
		fmt.Sprintf("unsupported aspect ratio %q", ratio), nil)
}
