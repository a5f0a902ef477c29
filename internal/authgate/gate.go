package authgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"atelier/internal/credits"
	"atelier/internal/jobs"
	"atelier/internal/logging"
	"atelier/internal/services"
)

// Class is the outcome of Classify.
type Class int

const (
	ClassOther Class = iota
	ClassCredential
)

func (c Class) String() string {
	if c == ClassCredential {
		return "credential"
	}
	return "other"
}

// Refunder returns reserved credits.
type Refunder interface {
	Rollback(token credits.Token) (credits.State, error)
}

// JobUpdater applies a mutation to a registered job.
type JobUpdater interface {
	Update(id string, fn func(*jobs.Job) error) (jobs.Job, error)
}

// Host is the authorization capability of the surrounding environment.
type Host interface {
	HasCredential(ctx context.Context) (bool, error)
	PromptCredentialSelection(ctx context.Context) (bool, error)
}

// Gate owns the needs-authorization flag.
type Gate struct {
	mu        sync.Mutex
	needsAuth bool

	ledger Refunder
	jobs   JobUpdater
	host   Host
	logger *slog.Logger
	now    func() time.Time
}

// Option customizes a Gate.
type Option func(*Gate)

// WithClock overrides the completion timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// New wires a gate. host may be nil when the environment cannot prompt.
func New(ledger Refunder, registry JobUpdater, host Host, logger *slog.Logger, opts ...Option) *Gate {
	g := &Gate{
		ledger: ledger,
		jobs:   registry,
		host:   host,
		logger: logging.NewComponentLogger(logger, "authgate"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Classify reports whether err is a credential failure.
func Classify(err error) Class {
	if errors.Is(err, services.ErrCredential) {
		return ClassCredential
	}
	return ClassOther
}

// OnCredentialError ends the job's attempt as a credential failure, refunds
// its reservation and raises the flag. The refund runs even when the job
// update fails.
func (g *Gate) OnCredentialError(ctx context.Context, jobID string, token credits.Token) (jobs.Job, error) {
	g.mu.Lock()
	g.needsAuth = true
	g.mu.Unlock()

	at := g.now().UTC()
	job, updateErr := g.jobs.Update(jobID, func(j *jobs.Job) error {
		return j.Fail(jobs.ErrorKindCredential, at)
	})
	_, rollbackErr := g.ledger.Rollback(token)

	logger := logging.WithContext(services.WithJobID(ctx, jobID), g.logger)
	logging.WarnWithContext(logger, "generation rejected the credential",
		"authorization_required",
		logging.Reservation(string(token)),
		logging.String(logging.FieldImpact, "job failed and its credits were refunded"),
		logging.String(logging.FieldErrorHint, "run `atelier auth select` and retry the job"),
	)

	if err := errors.Join(updateErr, rollbackErr); err != nil {
		return job, fmt.Errorf("credential failure for job %s: %w", jobID, err)
	}
	return job, nil
}

// Resolve clears the flag. Failed jobs are not retried.
func (g *Gate) Resolve() {
	g.mu.Lock()
	g.needsAuth = false
	g.mu.Unlock()
	g.logger.Info("authorization resolved", logging.String(logging.FieldEventType, "authorization_resolved"))
}

// Authorize asks the host for a credential when none is present and
// resolves the flag once one is available. It reports whether the flag was
// cleared.
func (g *Gate) Authorize(ctx context.Context) (bool, error) {
	if g.host == nil {
		return false, services.Wrap(services.ErrConfiguration, "authgate", "authorize", "no credential host", nil)
	}
	has, err := g.host.HasCredential(ctx)
	if err != nil {
		return false, fmt.Errorf("check credential: %w", err)
	}
	if !has {
		selected, err := g.host.PromptCredentialSelection(ctx)
		if err != nil {
			return false, fmt.Errorf("select credential: %w", err)
		}
		if !selected {
			return false, nil
		}
	}
	g.Resolve()
	return true, nil
}

// NeedsAuthorization reports the current flag.
func (g *Gate) NeedsAuthorization() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.needsAuth
}

// Restore sets the flag from a persisted session.
func (g *Gate) Restore(needsAuth bool) {
	g.mu.Lock()
	g.needsAuth = needsAuth
	g.mu.Unlock()
}
