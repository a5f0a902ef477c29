package jobs_test

import (
	"errors"
	"testing"
	"time"

	"atelier/internal/jobs"
)

func newJob(id string) jobs.Job {
	return jobs.Job{
		ID:        id,
		Kind:      jobs.KindVideo,
		Status:    jobs.StatusQueued,
		InputText: "a lighthouse at dusk",
		Tier:      jobs.TierStandard,
		Attempt:   1,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func mustInsert(t *testing.T, r *jobs.Registry, job jobs.Job) {
	t.Helper()
	if err := r.Insert(job); err != nil {
		t.Fatalf("Insert %s failed: %v", job.ID, err)
	}
}

func TestListIsNewestFirst(t *testing.T) {
	r := jobs.NewRegistry()
	mustInsert(t, r, newJob("a"))
	mustInsert(t, r, newJob("b"))
	mustInsert(t, r, newJob("c"))

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(list))
	}
	if list[0].ID != "c" || list[1].ID != "b" || list[2].ID != "a" {
		t.Fatalf("unexpected order: %s %s %s", list[0].ID, list[1].ID, list[2].ID)
	}
}

func TestInsertRejectsDuplicateID(t *testing.T) {
	r := jobs.NewRegistry()
	mustInsert(t, r, newJob("a"))
	if err := r.Insert(newJob("a")); !errors.Is(err, jobs.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestUpdateStatusEnforcesGraph(t *testing.T) {
	cases := []struct {
		name  string
		path  []jobs.Status
		legal bool
	}{
		{"queued to processing", []jobs.Status{jobs.StatusProcessing}, true},
		{"queued to done", []jobs.Status{jobs.StatusDone}, false},
		{"queued to error", []jobs.Status{jobs.StatusError}, false},
		{"processing to queued", []jobs.Status{jobs.StatusProcessing, jobs.StatusQueued}, false},
		{"processing to processing", []jobs.Status{jobs.StatusProcessing, jobs.StatusProcessing}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := jobs.NewRegistry()
			mustInsert(t, r, newJob("x"))
			var err error
			for _, status := range tc.path {
				if _, err = r.UpdateStatus("x", status); err != nil {
					break
				}
			}
			if tc.legal && err != nil {
				t.Fatalf("expected legal path, got %v", err)
			}
			if !tc.legal && !errors.Is(err, jobs.ErrIllegalTransition) {
				t.Fatalf("expected ErrIllegalTransition, got %v", err)
			}
		})
	}
}

func TestTerminalEdgesRequireOutcome(t *testing.T) {
	r := jobs.NewRegistry()
	mustInsert(t, r, newJob("x"))
	if _, err := r.UpdateStatus("x", jobs.StatusProcessing); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := r.UpdateStatus("x", jobs.StatusDone); err == nil {
		t.Fatal("expected done without result handle to be rejected")
	}
	if _, err := r.UpdateStatus("x", jobs.StatusError); err == nil {
		t.Fatal("expected error without classification to be rejected")
	}
	got, _ := r.Get("x")
	if got.Status != jobs.StatusProcessing {
		t.Fatalf("expected processing, got %s", got.Status)
	}
}

func TestTerminalStatusesAreFinal(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	r := jobs.NewRegistry()
	mustInsert(t, r, newJob("done"))
	mustInsert(t, r, newJob("failed"))
	for _, id := range []string{"done", "failed"} {
		if _, err := r.UpdateStatus(id, jobs.StatusProcessing); err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
	}
	if _, err := r.Update("done", func(j *jobs.Job) error { return j.Complete("res://1", 0, at) }); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if _, err := r.Update("failed", func(j *jobs.Job) error { return j.Fail(jobs.ErrorKindTransport, at) }); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	if _, err := r.Update("done", func(j *jobs.Job) error { return j.Fail(jobs.ErrorKindTransport, at) }); !errors.Is(err, jobs.ErrIllegalTransition) {
		t.Fatalf("expected done -> error to be illegal, got %v", err)
	}
	if _, err := r.Update("failed", func(j *jobs.Job) error { return j.Complete("res://2", 0, at) }); !errors.Is(err, jobs.ErrIllegalTransition) {
		t.Fatalf("expected error -> done to be illegal, got %v", err)
	}
	for _, id := range []string{"done", "failed"} {
		if _, err := r.UpdateStatus(id, jobs.StatusProcessing); !errors.Is(err, jobs.ErrIllegalTransition) {
			t.Fatalf("expected %s -> processing to be illegal, got %v", id, err)
		}
	}
}

func TestUpdateRejectsIllegalStatusFromCallback(t *testing.T) {
	r := jobs.NewRegistry()
	mustInsert(t, r, newJob("x"))

	_, err := r.Update("x", func(j *jobs.Job) error {
		j.Status = jobs.StatusDone
		return nil
	})
	if !errors.Is(err, jobs.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	got, _ := r.Get("x")
	if got.Status != jobs.StatusQueued {
		t.Fatalf("expected job to stay queued, got %s", got.Status)
	}
}

func TestUpdateDiscardsChangesOnError(t *testing.T) {
	r := jobs.NewRegistry()
	mustInsert(t, r, newJob("x"))

	boom := errors.New("boom")
	_, err := r.Update("x", func(j *jobs.Job) error {
		j.InputText = "changed"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	got, _ := r.Get("x")
	if got.InputText != "a lighthouse at dusk" {
		t.Fatalf("expected original text, got %q", got.InputText)
	}
}

func TestCompleteAndFailSetOutcomeFields(t *testing.T) {
	r := jobs.NewRegistry()
	mustInsert(t, r, newJob("ok"))
	mustInsert(t, r, newJob("bad"))
	at := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)

	for _, id := range []string{"ok", "bad"} {
		if _, err := r.UpdateStatus(id, jobs.StatusProcessing); err != nil {
			t.Fatalf("start %s: %v", id, err)
		}
	}
	done, err := r.Update("ok", func(j *jobs.Job) error { return j.Complete("res://1", 8, at) })
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if done.Status != jobs.StatusDone || done.ResultRef != "res://1" || done.CompletedAt == nil {
		t.Fatalf("unexpected done job: %#v", done)
	}

	failed, err := r.Update("bad", func(j *jobs.Job) error { return j.Fail(jobs.ErrorKindCredential, at) })
	if err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if failed.Status != jobs.StatusError || failed.ErrorKind != jobs.ErrorKindCredential || failed.ResultRef != "" {
		t.Fatalf("unexpected failed job: %#v", failed)
	}
}

func TestCompleteRequiresResultHandle(t *testing.T) {
	job := newJob("x")
	if err := job.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := job.Complete("  ", 0, time.Now()); err == nil {
		t.Fatal("expected error for empty result handle")
	}
	if job.Status != jobs.StatusProcessing {
		t.Fatalf("expected processing, got %s", job.Status)
	}
}

func TestReopenOnlyFromError(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)

	done := newJob("done")
	_ = done.Start()
	_ = done.Complete("res://1", 0, at)
	if err := done.Reopen("tok-2", 100); !errors.Is(err, jobs.ErrIllegalTransition) {
		t.Fatalf("expected done job to refuse reopen, got %v", err)
	}

	failed := newJob("failed")
	_ = failed.Start()
	_ = failed.Fail(jobs.ErrorKindCredential, at)
	if err := failed.Reopen("tok-2", 100); err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	if failed.Status != jobs.StatusQueued || failed.Attempt != 2 || failed.ErrorKind != jobs.ErrorKindNone || failed.CompletedAt != nil {
		t.Fatalf("unexpected reopened job: %#v", failed)
	}
	if failed.ReservationID != "tok-2" {
		t.Fatalf("expected new reservation, got %q", failed.ReservationID)
	}
}

func TestSelectIgnoresUnknownID(t *testing.T) {
	r := jobs.NewRegistry()
	mustInsert(t, r, newJob("a"))
	if !r.Select("a") {
		t.Fatal("expected select to succeed")
	}
	if r.Select("missing") {
		t.Fatal("expected select of unknown id to report false")
	}
	selected, ok := r.Selected()
	if !ok || selected.ID != "a" {
		t.Fatalf("expected cursor to stay on a, got %#v", selected)
	}
}

func TestRemoveClearsSelection(t *testing.T) {
	r := jobs.NewRegistry()
	mustInsert(t, r, newJob("a"))
	mustInsert(t, r, newJob("b"))
	r.Select("b")

	if _, err := r.Remove("a"); err != nil {
		t.Fatalf("Remove a failed: %v", err)
	}
	if sel, ok := r.Selected(); !ok || sel.ID != "b" {
		t.Fatal("expected cursor to stay on b after removing another job")
	}

	if _, err := r.Remove("b"); err != nil {
		t.Fatalf("Remove b failed: %v", err)
	}
	if _, ok := r.Selected(); ok {
		t.Fatal("expected cursor to clear after removing the selected job")
	}
	if snap := r.Snapshot(); snap.SelectedJobID != "" {
		t.Fatalf("expected empty selection in snapshot, got %q", snap.SelectedJobID)
	}
	if _, err := r.Remove("b"); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestActiveForSource(t *testing.T) {
	r := jobs.NewRegistry()
	job := newJob("a")
	job.SourceAssetID = "asset-1"
	mustInsert(t, r, job)

	if !r.ActiveForSource("asset-1") {
		t.Fatal("expected queued job to count as active")
	}
	if _, err := r.UpdateStatus("a", jobs.StatusProcessing); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if !r.ActiveForSource("asset-1") {
		t.Fatal("expected processing job to count as active")
	}
	if _, err := r.Update("a", func(j *jobs.Job) error { return j.Fail(jobs.ErrorKindTransport, time.Now()) }); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if r.ActiveForSource("asset-1") {
		t.Fatal("expected failed job to release the asset")
	}
	if r.ActiveForSource("") {
		t.Fatal("expected empty asset id to never be active")
	}
}

func TestRestoreDropsDanglingSelection(t *testing.T) {
	r := jobs.NewRegistry()
	err := r.Restore(jobs.Session{
		Jobs:          []jobs.Job{newJob("a")},
		SelectedJobID: "gone",
	})
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if _, ok := r.Selected(); ok {
		t.Fatal("expected dangling selection to be dropped")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 job, got %d", r.Len())
	}
}

func TestChainDurationAndLineage(t *testing.T) {
	r := jobs.NewRegistry()
	root := newJob("root")
	root.DurationSeconds = 8
	child := newJob("child")
	child.ParentJobID = "root"
	child.DurationSeconds = 7
	grandchild := newJob("grandchild")
	grandchild.ParentJobID = "child"
	grandchild.DurationSeconds = 7
	mustInsert(t, r, root)
	mustInsert(t, r, child)
	mustInsert(t, r, grandchild)

	if got := jobs.ChainDuration(r, "grandchild"); got != 22 {
		t.Fatalf("expected 22 seconds, got %v", got)
	}
	lineage := jobs.Lineage(r, "grandchild")
	if len(lineage) != 3 || lineage[0] != "root" || lineage[2] != "grandchild" {
		t.Fatalf("unexpected lineage: %v", lineage)
	}
}
