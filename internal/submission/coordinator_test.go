package submission_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"atelier/internal/credits"
	"atelier/internal/jobs"
	"atelier/internal/services"
	"atelier/internal/services/generation"
	"atelier/internal/submission"
)

func TestSubmitHappyPath(t *testing.T) {
	h := newHarness(t, 250)
	release := h.gen.Hold()

	job, err := h.coord.Submit(context.Background(), videoRequest("a lighthouse at dusk"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if job.Status != jobs.StatusProcessing {
		t.Fatalf("expected processing, got %s", job.Status)
	}
	if job.CostCredits != 100 || job.Attempt != 1 || job.ReservationID == "" {
		t.Fatalf("unexpected job %+v", job)
	}
	if h.ledger.Balance() != 150 {
		t.Fatalf("expected reservation to debit immediately, balance=%d", h.ledger.Balance())
	}
	if selected, ok := h.registry.Selected(); !ok || selected.ID != job.ID {
		t.Fatal("expected new job to be selected")
	}

	release()
	waitSettled(t, h.coord)

	done := h.job(t, job.ID)
	if done.Status != jobs.StatusDone || done.ResultRef != "fake://job-1/1" {
		t.Fatalf("unexpected final state %s %q", done.Status, done.ResultRef)
	}
	if done.CompletedAt == nil || done.ErrorKind != jobs.ErrorKindNone {
		t.Fatalf("unexpected outcome fields %+v", done)
	}
	res, _ := h.ledger.Reservation(credits.Token(done.ReservationID))
	if res.State != credits.StateFinalized {
		t.Fatalf("expected finalized reservation, got %s", res.State)
	}
	if h.ledger.Balance() != 150 {
		t.Fatalf("expected balance 150, got %d", h.ledger.Balance())
	}
	h.assertSettled(t)
}

func TestSubmitSendsJobToGenerator(t *testing.T) {
	h := newHarness(t, 1000)
	req := jobs.Request{
		Kind:        jobs.KindImage,
		Tier:        jobs.TierPremium,
		InputText:   "portrait",
		References:  []jobs.Reference{{Handle: "asset://a", Role: jobs.RoleCharacter}, {Handle: "asset://b", Role: jobs.RoleStyle}},
		Resolution:  "1080p",
		AspectRatio: "1:1",
	}
	if _, err := h.coord.Submit(context.Background(), req); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitSettled(t, h.coord)

	calls := h.gen.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one call, got %d", len(calls))
	}
	got := calls[0]
	if got.JobID != "job-1" || got.Kind != jobs.KindImage || got.Tier != jobs.TierPremium || len(got.References) != 2 {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.Resolution != "1080p" || got.AspectRatio != "1:1" {
		t.Fatalf("expected output hints forwarded, got %+v", got)
	}
}

func TestSubmitRejectsBeforeCreatingJob(t *testing.T) {
	cases := []struct {
		name string
		req  jobs.Request
		want error
	}{
		{"empty directive and references", jobs.Request{Kind: jobs.KindVideo, Tier: jobs.TierStandard, InputText: "  "}, services.ErrValidation},
		{"too many references for tier", jobs.Request{Kind: jobs.KindImage, Tier: jobs.TierStandard, References: []jobs.Reference{{Handle: "a"}, {Handle: "b"}}}, services.ErrValidation},
		{"resolution above tier", jobs.Request{Kind: jobs.KindVideo, Tier: jobs.TierStandard, InputText: "x", Resolution: "1080p"}, services.ErrValidation},
		{"unknown aspect ratio", jobs.Request{Kind: jobs.KindVideo, Tier: jobs.TierStandard, InputText: "x", AspectRatio: "21:9"}, services.ErrValidation},
		{"unknown kind", jobs.Request{Kind: "text", Tier: jobs.TierStandard, InputText: "x"}, services.ErrValidation},
		{"unknown tier", jobs.Request{Kind: jobs.KindVideo, Tier: "gold", InputText: "x"}, services.ErrValidation},
		{"negative cost", jobs.Request{Kind: jobs.KindVideo, Tier: jobs.TierStandard, InputText: "x", CostCredits: -5}, services.ErrValidation},
		{"insufficient credits", jobs.Request{Kind: jobs.KindVideo, Tier: jobs.TierPremium, InputText: "x"}, services.ErrQuota},
		{"missing parent", jobs.Request{Kind: jobs.KindVideo, Tier: jobs.TierStandard, InputText: "x", ParentJobID: "nope"}, services.ErrChain},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, 200)
			entries := len(h.ledger.Entries())

			_, err := h.coord.Submit(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !services.IsPreflight(err) {
				t.Fatalf("expected a pre-flight rejection, got %v", err)
			}
			if h.registry.Len() != 0 {
				t.Fatalf("expected no job, got %d", h.registry.Len())
			}
			if len(h.ledger.Entries()) != entries || h.ledger.Balance() != 200 {
				t.Fatalf("ledger changed: balance=%d entries=%d", h.ledger.Balance(), len(h.ledger.Entries()))
			}
			if len(h.gen.Calls()) != 0 {
				t.Fatal("generator must not be called")
			}
		})
	}
}

func TestExplicitCostOverridesTable(t *testing.T) {
	h := newHarness(t, 100)
	req := videoRequest("cheap")
	req.CostCredits = 30
	job, err := h.coord.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if job.CostCredits != 30 || h.ledger.Balance() != 70 {
		t.Fatalf("unexpected cost %d balance %d", job.CostCredits, h.ledger.Balance())
	}
}

func TestCredentialFailureRaisesAuthorization(t *testing.T) {
	h := newHarness(t, 250)
	h.gen.FailWith(services.Wrap(services.ErrCredential, "generation", "generate", "credential rejected", errors.New("http 403")))

	job, err := h.coord.Submit(context.Background(), videoRequest("night city"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitSettled(t, h.coord)

	failed := h.job(t, job.ID)
	if failed.Status != jobs.StatusError || failed.ErrorKind != jobs.ErrorKindCredential {
		t.Fatalf("unexpected state %s/%s", failed.Status, failed.ErrorKind)
	}
	if failed.ErrorKind.Message() == "" {
		t.Fatal("expected user-facing message")
	}
	if h.ledger.Balance() != 250 {
		t.Fatalf("expected full refund, balance=%d", h.ledger.Balance())
	}
	if !h.gate.NeedsAuthorization() {
		t.Fatal("expected needsAuthorization")
	}
	session, _, _, err := h.store.Load(context.Background())
	if err != nil || !session.NeedsAuthorization {
		t.Fatalf("expected persisted authorization flag, err=%v", err)
	}
	h.assertSettled(t)

	if _, err := h.coord.Resubmit(context.Background(), job.ID); !errors.Is(err, services.ErrCredential) {
		t.Fatalf("expected resubmit to be refused while unauthorized, got %v", err)
	}
	if got := h.job(t, job.ID); got.Status != jobs.StatusError || got.Attempt != 1 {
		t.Fatalf("refused resubmit changed the job: %+v", got)
	}

	h.gate.Resolve()
	h.gen.Respond(nil)
	retried, err := h.coord.Resubmit(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Resubmit failed: %v", err)
	}
	if retried.Attempt != 2 || retried.ReservationID == failed.ReservationID {
		t.Fatalf("expected a new attempt with a new reservation, got %+v", retried)
	}
	waitSettled(t, h.coord)

	done := h.job(t, job.ID)
	if done.Status != jobs.StatusDone || done.ResultRef != "fake://"+job.ID+"/2" {
		t.Fatalf("unexpected retry outcome %s %q", done.Status, done.ResultRef)
	}
	if h.ledger.Balance() != 150 {
		t.Fatalf("expected one charge after retry, balance=%d", h.ledger.Balance())
	}
	if h.registry.Len() != 1 {
		t.Fatalf("retry must reuse the job, got %d jobs", h.registry.Len())
	}
	h.assertSettled(t)
}

func TestTransportFailureRefunds(t *testing.T) {
	h := newHarness(t, 250)
	h.gen.FailWith(services.Wrap(services.ErrTransport, "generation", "generate", "request failed", errors.New("http 500")))

	job, err := h.coord.Submit(context.Background(), videoRequest("storm"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitSettled(t, h.coord)

	failed := h.job(t, job.ID)
	if failed.Status != jobs.StatusError || failed.ErrorKind != jobs.ErrorKindTransport {
		t.Fatalf("unexpected state %s/%s", failed.Status, failed.ErrorKind)
	}
	if failed.ResultRef != "" {
		t.Fatal("failed job must not carry a result")
	}
	if h.ledger.Balance() != 250 {
		t.Fatalf("expected refund, balance=%d", h.ledger.Balance())
	}
	if h.gate.NeedsAuthorization() {
		t.Fatal("transport failures must not require authorization")
	}
	h.assertSettled(t)
}

func TestUnclassifiedFailureIsTransport(t *testing.T) {
	h := newHarness(t, 250)
	h.gen.FailWith(errors.New("Requested entity not found"))

	job, _ := h.coord.Submit(context.Background(), videoRequest("x"))
	waitSettled(t, h.coord)
	if got := h.job(t, job.ID); got.ErrorKind != jobs.ErrorKindTransport {
		t.Fatalf("expected transport, got %s", got.ErrorKind)
	}
	if h.gate.NeedsAuthorization() {
		t.Fatal("free-form text must not raise authorization")
	}
}

func TestEmptyResultHandleIsFailure(t *testing.T) {
	h := newHarness(t, 250)
	h.gen.Respond(func(context.Context, generation.Request) (generation.Result, error) {
		return generation.Result{ResultRef: "  "}, nil
	})

	job, _ := h.coord.Submit(context.Background(), videoRequest("x"))
	waitSettled(t, h.coord)
	got := h.job(t, job.ID)
	if got.Status != jobs.StatusError || got.ErrorKind != jobs.ErrorKindTransport {
		t.Fatalf("expected transport failure, got %s/%s", got.Status, got.ErrorKind)
	}
	if h.ledger.Balance() != 250 {
		t.Fatalf("expected refund, balance=%d", h.ledger.Balance())
	}
}

func TestDispatchDeadline(t *testing.T) {
	h := newHarness(t, 250, submission.WithDeadline(20*time.Millisecond))
	release := h.gen.Hold()
	defer release()

	job, err := h.coord.Submit(context.Background(), videoRequest("slow"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitSettled(t, h.coord)

	got := h.job(t, job.ID)
	if got.Status != jobs.StatusError || got.ErrorKind != jobs.ErrorKindTransport {
		t.Fatalf("expected deadline failure, got %s/%s", got.Status, got.ErrorKind)
	}
	if h.ledger.Balance() != 250 {
		t.Fatalf("expected refund, balance=%d", h.ledger.Balance())
	}
	h.assertSettled(t)
}

func TestDispatchDeadlineIgnoredByGenerator(t *testing.T) {
	h := newHarness(t, 250, submission.WithDeadline(20*time.Millisecond))
	late := make(chan struct{})
	lateDone := make(chan struct{})
	h.gen.Respond(func(_ context.Context, req generation.Request) (generation.Result, error) {
		if req.Attempt == 1 {
			<-late
			defer close(lateDone)
			return generation.Result{ResultRef: "late://" + req.JobID}, nil
		}
		return generation.Result{ResultRef: "fresh://" + req.JobID}, nil
	})

	job, err := h.coord.Submit(context.Background(), videoRequest("stubborn"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitSettled(t, h.coord)

	failed := h.job(t, job.ID)
	if failed.Status != jobs.StatusError || failed.ErrorKind != jobs.ErrorKindTransport {
		t.Fatalf("expected deadline failure, got %s/%s", failed.Status, failed.ErrorKind)
	}
	if h.ledger.Balance() != 250 {
		t.Fatalf("expected refund at the deadline, balance=%d", h.ledger.Balance())
	}

	retried, err := h.coord.Resubmit(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Resubmit failed: %v", err)
	}
	waitSettled(t, h.coord)
	if got := h.job(t, job.ID); got.Status != jobs.StatusDone || got.Attempt != retried.Attempt {
		t.Fatalf("expected retry to finish, got %+v", got)
	}

	close(late)
	<-lateDone

	got := h.job(t, job.ID)
	if got.Status != jobs.StatusDone || got.ResultRef != "fresh://"+job.ID {
		t.Fatalf("late result leaked into the job: %s %q", got.Status, got.ResultRef)
	}
	if h.ledger.Balance() != 150 {
		t.Fatalf("expected a single charge, balance=%d", h.ledger.Balance())
	}
	h.assertSettled(t)
}

func TestCallerCancellationDoesNotAbortDispatch(t *testing.T) {
	h := newHarness(t, 250)
	release := h.gen.Hold()

	ctx, cancel := context.WithCancel(context.Background())
	job, err := h.coord.Submit(ctx, videoRequest("keep going"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-h.gen.Started()
	cancel()
	release()
	waitSettled(t, h.coord)

	if got := h.job(t, job.ID); got.Status != jobs.StatusDone {
		t.Fatalf("expected done despite caller cancellation, got %s", got.Status)
	}
}

func TestExtendChainsFromDoneParent(t *testing.T) {
	h := newHarness(t, 500)
	parent, _ := h.coord.Submit(context.Background(), videoRequest("opening shot"))
	waitSettled(t, h.coord)

	child, err := h.coord.Extend(context.Background(), parent.ID, "the camera pulls back")
	if err != nil {
		t.Fatalf("Extend failed: %v", err)
	}
	waitSettled(t, h.coord)

	if child.ParentJobID != parent.ID {
		t.Fatalf("expected parent link, got %q", child.ParentJobID)
	}
	if len(child.References) != 1 || child.References[0].Handle != "fake://job-1/1" || child.References[0].Role != jobs.RoleContinuation {
		t.Fatalf("unexpected references %+v", child.References)
	}
	if child.CostCredits != 100 {
		t.Fatalf("expected full price for extension, got %d", child.CostCredits)
	}
	calls := h.gen.Calls()
	if last := calls[len(calls)-1]; last.ParentOutputRef != "fake://job-1/1" {
		t.Fatalf("expected parent output forwarded, got %q", last.ParentOutputRef)
	}
	if got := jobs.ChainDuration(h.registry, child.ID); got != 8 {
		t.Fatalf("expected chain duration 8, got %v", got)
	}
	if list := h.registry.List(); list[0].ID != child.ID {
		t.Fatal("expected child first in newest-first order")
	}
	if h.ledger.Balance() != 300 {
		t.Fatalf("expected two charges, balance=%d", h.ledger.Balance())
	}
}

func TestExtendRejectsFailedParent(t *testing.T) {
	h := newHarness(t, 500)
	h.gen.FailWith(services.Wrap(services.ErrTransport, "generation", "generate", "boom", nil))
	parent, _ := h.coord.Submit(context.Background(), videoRequest("x"))
	waitSettled(t, h.coord)
	balance := h.ledger.Balance()

	if _, err := h.coord.Extend(context.Background(), parent.ID, "more"); !errors.Is(err, services.ErrChain) {
		t.Fatalf("expected ErrChain, got %v", err)
	}
	if h.registry.Len() != 1 || h.ledger.Balance() != balance {
		t.Fatal("chain rejection must not create a job or touch credits")
	}
}

func TestResubmitOnlyFromError(t *testing.T) {
	h := newHarness(t, 500)
	job, _ := h.coord.Submit(context.Background(), videoRequest("x"))
	waitSettled(t, h.coord)

	if _, err := h.coord.Resubmit(context.Background(), job.ID); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected ErrConflict for done job, got %v", err)
	}
	if _, err := h.coord.Resubmit(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResubmitNeedsCredits(t *testing.T) {
	h := newHarness(t, 100)
	h.gen.FailWith(services.Wrap(services.ErrTransport, "generation", "generate", "boom", nil))
	job, _ := h.coord.Submit(context.Background(), videoRequest("x"))
	waitSettled(t, h.coord)
	if err := h.coord.Grant(context.Background(), 0, "noop"); err == nil {
		t.Fatal("expected zero grant to be rejected")
	}

	h.gen.Respond(nil)
	req := videoRequest("drain")
	if _, err := h.coord.Submit(context.Background(), req); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitSettled(t, h.coord)

	if _, err := h.coord.Resubmit(context.Background(), job.ID); !errors.Is(err, services.ErrQuota) {
		t.Fatalf("expected ErrQuota, got %v", err)
	}
	if got := h.job(t, job.ID); got.Status != jobs.StatusError || got.Attempt != 1 {
		t.Fatalf("quota rejection changed the job: %+v", got)
	}
}

func TestRemoveAndReset(t *testing.T) {
	h := newHarness(t, 500)
	release := h.gen.Hold()
	job, _ := h.coord.Submit(context.Background(), videoRequest("x"))

	if _, err := h.coord.Remove(context.Background(), job.ID); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected ErrConflict removing in-flight job, got %v", err)
	}
	if err := h.coord.Reset(context.Background()); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected ErrConflict resetting with work in flight, got %v", err)
	}

	release()
	waitSettled(t, h.coord)

	if _, err := h.coord.Remove(context.Background(), job.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok := h.registry.Selected(); ok {
		t.Fatal("expected selection cleared with removed job")
	}
	if _, err := h.coord.Remove(context.Background(), job.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	second, _ := h.coord.Submit(context.Background(), videoRequest("y"))
	waitSettled(t, h.coord)
	if err := h.coord.Select(context.Background(), "unknown"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound selecting unknown job, got %v", err)
	}
	if selected, _ := h.registry.Selected(); selected.ID != second.ID {
		t.Fatal("unknown selection must leave the cursor alone")
	}
	if err := h.coord.Reset(context.Background()); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if h.registry.Len() != 0 {
		t.Fatal("expected empty registry")
	}
	if h.ledger.Balance() != 300 {
		t.Fatalf("reset must keep the account, balance=%d", h.ledger.Balance())
	}
	h.assertSettled(t)
}

func TestConcurrentSubmissionsConserveCredits(t *testing.T) {
	const opening = 5000
	h := newHarness(t, opening)
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(11))
	h.gen.Respond(func(_ context.Context, req generation.Request) (generation.Result, error) {
		mu.Lock()
		roll := rng.Intn(3)
		mu.Unlock()
		switch roll {
		case 0:
			return generation.Result{}, services.Wrap(services.ErrTransport, "generation", "generate", "flaky", nil)
		case 1:
			return generation.Result{ResultRef: ""}, nil
		default:
			return generation.Result{ResultRef: "fake://" + req.JobID}, nil
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kind := jobs.AllKinds()[i%3]
			_, _ = h.coord.Submit(context.Background(), jobs.Request{Kind: kind, Tier: jobs.TierStandard, InputText: "x"})
		}(i)
	}
	wg.Wait()
	waitSettled(t, h.coord)

	var spent int64
	for _, job := range h.registry.List() {
		switch job.Status {
		case jobs.StatusDone:
			if job.ResultRef == "" {
				t.Fatalf("done job %s without result", job.ID)
			}
			spent += job.CostCredits
		case jobs.StatusError:
			if job.ErrorKind == jobs.ErrorKindNone {
				t.Fatalf("error job %s without kind", job.ID)
			}
		default:
			t.Fatalf("job %s still %s", job.ID, job.Status)
		}
	}
	if h.ledger.Balance() != opening-spent {
		t.Fatalf("balance %d, want %d", h.ledger.Balance(), opening-spent)
	}
	h.assertSettled(t)
}
