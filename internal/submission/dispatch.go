package submission

import (
	"context"
	"errors"
	"strings"

	"atelier/internal/authgate"
	"atelier/internal/credits"
	"atelier/internal/jobs"
	"atelier/internal/logging"
	"atelier/internal/services"
	"atelier/internal/services/generation"
)

type dispatchOutcome struct {
	result generation.Result
	err    error
}

// dispatch runs the generator for job on its own goroutine. The call keeps
// the caller's context values but not its cancellation; only the dispatch
// deadline ends it early. A generator that outlives the deadline has its
// result dropped.
func (c *Coordinator) dispatch(ctx context.Context, job jobs.Job) {
	ctx = services.WithJobID(context.WithoutCancel(ctx), job.ID)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		runCtx, cancel := context.WithTimeout(ctx, c.deadline)
		defer cancel()

		outcome := make(chan dispatchOutcome, 1)
		go func() {
			result, err := c.generate(runCtx, job)
			outcome <- dispatchOutcome{result: result, err: err}
		}()

		var result generation.Result
		var err error
		select {
		case out := <-outcome:
			result, err = out.result, out.err
		case <-runCtx.Done():
			err = services.Wrap(services.ErrTransport, "submission", "dispatch", "deadline exceeded", runCtx.Err())
		}
		if err == nil && strings.TrimSpace(result.ResultRef) == "" {
			err = services.Wrap(services.ErrTransport, "submission", "dispatch", "service returned no result handle", nil)
		}
		if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, services.ErrCredential) {
			err = services.Wrap(services.ErrTransport, "submission", "dispatch", "deadline exceeded", err)
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.attemptLiveLocked(job) {
			logging.WithContext(ctx, c.logger).Debug("dropping outcome of a settled attempt",
				logging.String(logging.FieldEventType, "dispatch_stale"),
				logging.Int("attempt", job.Attempt),
			)
			return
		}
		if err != nil {
			c.failLocked(ctx, job, err)
			return
		}
		c.completeLocked(ctx, job, result)
	}()
}

// attemptLiveLocked reports whether job is still the processing attempt that
// was dispatched, with the same reservation.
func (c *Coordinator) attemptLiveLocked(job jobs.Job) bool {
	current, ok := c.registry.Get(job.ID)
	return ok &&
		current.Status == jobs.StatusProcessing &&
		current.Attempt == job.Attempt &&
		current.ReservationID == job.ReservationID
}

func (c *Coordinator) generate(ctx context.Context, job jobs.Job) (result generation.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrTransport, "submission", "dispatch", "generator panicked", nil)
		}
	}()
	if c.generator == nil {
		return generation.Result{}, services.Wrap(services.ErrTransport, "submission", "dispatch", "no generator configured", nil)
	}
	return c.generator.Generate(ctx, generation.RequestFromJob(job))
}

func (c *Coordinator) completeLocked(ctx context.Context, job jobs.Job, result generation.Result) {
	logger := logging.WithContext(ctx, c.logger)
	token := credits.Token(job.ReservationID)
	at := c.now().UTC()
	done, err := c.registry.Update(job.ID, func(j *jobs.Job) error {
		return j.Complete(result.ResultRef, result.DurationSeconds, at)
	})
	if err != nil {
		logging.ErrorWithContext(logger, "failed to record generation result", "job_update_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the result was discarded and credits refunded"),
		)
		c.rollbackLocked(ctx, token)
		c.persistLocked(ctx)
		return
	}
	if _, err := c.ledger.Finalize(token); err != nil {
		logging.ErrorWithContext(logger, "failed to finalize reservation", "credits_finalize_failed",
			logging.Error(err),
			logging.Reservation(string(token)),
		)
	}
	c.persistLocked(ctx)
	logger.Info("job done",
		logging.String(logging.FieldEventType, "job_done"),
		logging.String("result_ref", done.ResultRef),
		logging.Float64("duration_seconds", done.DurationSeconds),
		logging.Credits(done.CostCredits),
	)
}

func (c *Coordinator) failLocked(ctx context.Context, job jobs.Job, cause error) {
	logger := logging.WithContext(ctx, c.logger)
	token := credits.Token(job.ReservationID)

	if authgate.Classify(cause) == authgate.ClassCredential && c.gate != nil {
		if _, err := c.gate.OnCredentialError(ctx, job.ID, token); err != nil {
			logging.ErrorWithContext(logger, "credential failure handling incomplete", "authorization_failed",
				logging.Error(err),
			)
		}
		c.persistLocked(ctx)
		return
	}

	kind := services.FailureKind(cause)
	at := c.now().UTC()
	if _, err := c.registry.Update(job.ID, func(j *jobs.Job) error {
		return j.Fail(kind, at)
	}); err != nil {
		logging.ErrorWithContext(logger, "failed to record generation failure", "job_update_failed",
			logging.Error(err),
		)
	}
	c.rollbackLocked(ctx, token)
	c.persistLocked(ctx)
	logging.WarnWithContext(logger, "job failed", "job_failed",
		logging.Error(cause),
		logging.String("error_kind", string(kind)),
		logging.String(logging.FieldImpact, kind.Message()),
		logging.String(logging.FieldErrorHint, "retry the job with `atelier retry`"),
	)
}

func (c *Coordinator) rollbackLocked(ctx context.Context, token credits.Token) {
	if token == "" {
		return
	}
	if _, err := c.ledger.Rollback(token); err != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, c.logger), "failed to roll back reservation", "credits_rollback_failed",
			logging.Error(err),
			logging.Reservation(string(token)),
		)
	}
}
