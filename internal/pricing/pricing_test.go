package pricing_test

import (
	"errors"
	"testing"

	"atelier/internal/config"
	"atelier/internal/jobs"
	"atelier/internal/pricing"
	"atelier/internal/services"
)

func TestFromConfigDefaults(t *testing.T) {
	cfg := config.Default()
	table, err := pricing.FromConfig(&cfg)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	cases := []struct {
		kind jobs.Kind
		tier jobs.Tier
		want int64
	}{
		{jobs.KindImage, jobs.TierStandard, 10},
		{jobs.KindVideo, jobs.TierStandard, 100},
		{jobs.KindVideo, jobs.TierPremium, 250},
		{jobs.KindAudio, jobs.TierPremium, 40},
	}
	for _, tc := range cases {
		got, err := table.Quote(tc.kind, tc.tier)
		if err != nil {
			t.Fatalf("Quote(%s, %s) failed: %v", tc.kind, tc.tier, err)
		}
		if got != tc.want {
			t.Fatalf("Quote(%s, %s) = %d, want %d", tc.kind, tc.tier, got, tc.want)
		}
	}
	if len(table.Entries()) != 6 {
		t.Fatalf("expected 6 entries, got %d", len(table.Entries()))
	}
}

func TestQuoteUnknownPairIsValidationError(t *testing.T) {
	table, err := pricing.New([]pricing.Entry{{Kind: jobs.KindImage, Tier: jobs.TierStandard, Credits: 5}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := table.Quote(jobs.KindVideo, jobs.TierStandard); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewRejectsNegativePrice(t *testing.T) {
	if _, err := pricing.New([]pricing.Entry{{Kind: jobs.KindImage, Tier: jobs.TierStandard, Credits: -1}}); err == nil {
		t.Fatal("expected error for negative price")
	}
}

func TestFromConfigRejectsUnknownKind(t *testing.T) {
	cfg := config.Default()
	cfg.Pricing = []config.PriceEntry{{Kind: "hologram", Tier: "standard", Credits: 1}}
	if _, err := pricing.FromConfig(&cfg); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
