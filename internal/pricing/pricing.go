package pricing

import (
	"fmt"
	"sort"

	"atelier/internal/config"
	"atelier/internal/jobs"
	"atelier/internal/services"
)

type key struct {
	kind jobs.Kind
	tier jobs.Tier
}

// Entry is one priced (kind, tier) combination.
type Entry struct {
	Kind    jobs.Kind
	Tier    jobs.Tier
	Credits int64
}

// Table maps (kind, tier) to a credit cost. It is immutable after construction.
type Table struct {
	prices map[key]int64
}

// New builds a table from entries. Later duplicates overwrite earlier ones.
func New(entries []Entry) (*Table, error) {
	t := &Table{prices: make(map[key]int64, len(entries))}
	for _, e := range entries {
		if e.Credits < 0 {
			return nil, fmt.Errorf("pricing: negative price for %s/%s", e.Kind, e.Tier)
		}
		t.prices[key{e.Kind, e.Tier}] = e.Credits
	}
	return t, nil
}

// FromConfig builds the table from the [[pricing]] section.
func FromConfig(cfg *config.Config) (*Table, error) {
	rows := cfg.Pricing
	if len(rows) == 0 {
		rows = config.DefaultPricing()
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		kind, ok := jobs.ParseKind(row.Kind)
		if !ok {
			return nil, fmt.Errorf("pricing: unknown kind %q", row.Kind)
		}
		tier, ok := jobs.ParseTier(row.Tier)
		if !ok {
			return nil, fmt.Errorf("pricing: unknown tier %q", row.Tier)
		}
		entries = append(entries, Entry{Kind: kind, Tier: tier, Credits: row.Credits})
	}
	return New(entries)
}

// Quote returns the price of a (kind, tier) submission.
func (t *Table) Quote(kind jobs.Kind, tier jobs.Tier) (int64, error) {
	price, ok := t.prices[key{kind, tier}]
	if !ok {
		return 0, services.Wrap(services.ErrValidation, "pricing", "quote", fmt.Sprintf("no price for %s/%s", kind, tier), nil)
	}
	return price, nil
}

// Entries lists the table sorted by kind then tier.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.prices))
	for k, credits := range t.prices {
		out = append(out, Entry{Kind: k.kind, Tier: k.tier, Credits: credits})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Tier < out[j].Tier
	})
	return out
}
