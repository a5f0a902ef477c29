package submission

import (
	"context"

	"atelier/internal/credits"
	"atelier/internal/jobs"
	"atelier/internal/logging"
	"atelier/internal/services"
)

// RecoveryReport summarizes what Recover settled.
type RecoveryReport struct {
	InterruptedJobs  []string
	RolledBack       []credits.Token
	FinalizedOrphans []credits.Token
}

// Empty reports whether nothing needed recovery.
func (r RecoveryReport) Empty() bool {
	return len(r.InterruptedJobs) == 0 && len(r.RolledBack) == 0 && len(r.FinalizedOrphans) == 0
}

// Recover settles attempts left in flight by a previous process. Queued and
// processing jobs become transport failures and their reservations are
// rolled back. An open reservation whose job finished is finalized; any
// other open reservation is rolled back. Call it before dispatching anything.
func (c *Coordinator) Recover(ctx context.Context) (RecoveryReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var report RecoveryReport
	at := c.now().UTC()
	for _, job := range c.registry.Active() {
		if job.Status == jobs.StatusQueued {
			if _, err := c.registry.UpdateStatus(job.ID, jobs.StatusProcessing); err != nil {
				return report, err
			}
		}
		if _, err := c.registry.Update(job.ID, func(j *jobs.Job) error {
			return j.Fail(jobs.ErrorKindTransport, at)
		}); err != nil {
			return report, err
		}
		report.InterruptedJobs = append(report.InterruptedJobs, job.ID)
		logging.WarnWithContext(logging.WithContext(services.WithJobID(ctx, job.ID), c.logger),
			"job interrupted by restart", "job_interrupted",
			logging.String("previous_status", string(job.Status)),
			logging.String(logging.FieldImpact, "the attempt was abandoned and its credits refunded"),
			logging.String(logging.FieldErrorHint, "retry the job with `atelier retry`"),
		)
	}

	for _, res := range c.ledger.Open() {
		if job, ok := c.registry.Get(res.JobID); ok && job.Status == jobs.StatusDone && job.ReservationID == string(res.Token) {
			if _, err := c.ledger.Finalize(res.Token); err != nil {
				return report, err
			}
			report.FinalizedOrphans = append(report.FinalizedOrphans, res.Token)
			continue
		}
		if _, err := c.ledger.Rollback(res.Token); err != nil {
			return report, err
		}
		report.RolledBack = append(report.RolledBack, res.Token)
	}

	if report.Empty() {
		return report, nil
	}
	c.logger.Info("recovered session",
		logging.String(logging.FieldEventType, "session_recovered"),
		logging.Int("interrupted_jobs", len(report.InterruptedJobs)),
		logging.Int("rolled_back", len(report.RolledBack)),
		logging.Int("finalized", len(report.FinalizedOrphans)),
	)
	return report, c.persistLocked(ctx)
}
