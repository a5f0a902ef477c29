package submission

import (
	"context"
	"errors"
	"fmt"

	"atelier/internal/credits"
	"atelier/internal/jobs"
	"atelier/internal/logging"
	"atelier/internal/services"
)

// Select moves the cursor to jobID.
func (c *Coordinator) Select(ctx context.Context, jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.registry.Select(jobID) {
		return services.Wrap(services.ErrNotFound, "submission", "select", "job "+jobID, nil)
	}
	return c.persistLocked(ctx)
}

// Remove deletes a job that has no attempt in flight.
func (c *Coordinator) Remove(ctx context.Context, jobID string) (jobs.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.registry.Get(jobID)
	if !ok {
		return jobs.Job{}, services.Wrap(services.ErrNotFound, "submission", "remove", "job "+jobID, nil)
	}
	if job.IsActive() {
		return jobs.Job{}, services.Wrap(services.ErrConflict, "submission", "remove",
			fmt.Sprintf("job %s is %s", jobID, job.Status), nil)
	}
	removed, err := c.registry.Remove(jobID)
	if err != nil {
		return jobs.Job{}, err
	}
	return removed, c.persistLocked(ctx)
}

// Reset removes every job. It is refused while any attempt is in flight.
// The credit account is kept.
func (c *Coordinator) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if active := c.registry.Active(); len(active) > 0 {
		return services.Wrap(services.ErrConflict, "submission", "reset",
			fmt.Sprintf("%d job(s) still in flight", len(active)), nil)
	}
	c.registry.Reset()
	return c.persistLocked(ctx)
}

// Grant tops up the credit balance.
func (c *Coordinator) Grant(ctx context.Context, amount int64, note string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ledger.Grant(amount, note); err != nil {
		return err
	}
	return c.persistLocked(ctx)
}

// Authorize runs the host credential selection and persists the cleared flag.
func (c *Coordinator) Authorize(ctx context.Context) (bool, error) {
	if c.gate == nil {
		return false, services.Wrap(services.ErrConfiguration, "submission", "authorize", "no authorization gate", nil)
	}
	ok, err := c.gate.Authorize(ctx)
	if err != nil || !ok {
		return ok, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return true, c.persistLocked(ctx)
}

// Restore loads a persisted session and account. Call Recover afterwards to
// settle attempts the previous process left in flight.
func (c *Coordinator) Restore(session jobs.Session, account credits.Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.registry.Restore(session); err != nil {
		return err
	}
	if err := c.ledger.Restore(account); err != nil {
		return err
	}
	if c.gate != nil {
		c.gate.Restore(session.NeedsAuthorization)
	}
	return nil
}

// Snapshot returns the current session and account.
func (c *Coordinator) Snapshot() (jobs.Session, credits.Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Wait blocks until every dispatched attempt has settled or ctx ends.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) snapshotLocked() (jobs.Session, credits.Account) {
	session := c.registry.Snapshot()
	if c.gate != nil {
		session.NeedsAuthorization = c.gate.NeedsAuthorization()
	}
	return session, c.ledger.Snapshot()
}

func (c *Coordinator) persistLocked(ctx context.Context) error {
	if c.saver == nil {
		return nil
	}
	session, account := c.snapshotLocked()
	err := c.saver.Save(ctx, session, account)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		c.logger.Debug("session not saved, context cancelled")
		return err
	}
	logging.ErrorWithContext(logging.WithContext(ctx, c.logger), "failed to persist session", "session_save_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the data directory is writable"),
	)
	return err
}
