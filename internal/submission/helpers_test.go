package submission_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"atelier/internal/assets"
	"atelier/internal/authgate"
	"atelier/internal/credits"
	"atelier/internal/jobs"
	"atelier/internal/kvstore"
	"atelier/internal/logging"
	"atelier/internal/persistence"
	"atelier/internal/pricing"
	"atelier/internal/submission"
	"atelier/internal/testsupport"
)

type harness struct {
	coord    *submission.Coordinator
	registry *jobs.Registry
	ledger   *credits.Ledger
	gate     *authgate.Gate
	gen      *testsupport.FakeGenerator
	store    *persistence.Adapter
}

func newHarness(t *testing.T, balance int64, opts ...submission.Option) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithInitialBalance(balance))
	table, err := pricing.FromConfig(cfg)
	if err != nil {
		t.Fatalf("pricing: %v", err)
	}
	ledger, err := credits.NewLedger(balance)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	registry := jobs.NewRegistry()
	gate := authgate.New(ledger, registry, nil, logging.NewNop())
	gen := testsupport.NewFakeGenerator()
	store := persistence.New(kvstore.NewMemory(), logging.NewNop())

	var seq atomic.Int64
	opts = append([]submission.Option{
		submission.WithIDSource(func() string { return fmt.Sprintf("job-%d", seq.Add(1)) }),
	}, opts...)
	coord := submission.New(submission.Deps{
		Registry:  registry,
		Ledger:    ledger,
		Assets:    assets.NewStore(nil, assets.LimitsFromConfig(cfg)),
		Pricing:   table,
		Gate:      gate,
		Generator: gen,
		Saver:     store,
		Logger:    logging.NewNop(),
	}, opts...)
	t.Cleanup(func() { waitSettled(t, coord) })
	return &harness{coord: coord, registry: registry, ledger: ledger, gate: gate, gen: gen, store: store}
}

func waitSettled(t *testing.T, coord *submission.Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := coord.Wait(ctx); err != nil {
		t.Fatalf("dispatches did not settle: %v", err)
	}
}

func (h *harness) job(t *testing.T, id string) jobs.Job {
	t.Helper()
	job, ok := h.registry.Get(id)
	if !ok {
		t.Fatalf("job %s not registered", id)
	}
	return job
}

// assertSettled checks that every reservation was settled exactly once and
// that the persisted snapshot matches memory.
func (h *harness) assertSettled(t *testing.T) {
	t.Helper()
	if open := h.ledger.Open(); len(open) != 0 {
		t.Fatalf("expected no open reservations, got %+v", open)
	}
	account := h.ledger.Snapshot()
	if err := account.Reconcile(); err != nil {
		t.Fatalf("ledger does not reconcile: %v", err)
	}
	session, stored, found, err := h.store.Load(context.Background())
	if err != nil || !found {
		t.Fatalf("load persisted session: found=%v err=%v", found, err)
	}
	if stored.Balance != h.ledger.Balance() {
		t.Fatalf("persisted balance %d, memory %d", stored.Balance, h.ledger.Balance())
	}
	if len(session.Jobs) != h.registry.Len() {
		t.Fatalf("persisted %d jobs, memory %d", len(session.Jobs), h.registry.Len())
	}
}

func videoRequest(text string) jobs.Request {
	return jobs.Request{Kind: jobs.KindVideo, Tier: jobs.TierStandard, InputText: text}
}
