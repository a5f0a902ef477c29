package submission

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"atelier/internal/assets"
	"atelier/internal/authgate"
	"atelier/internal/chaining"
	"atelier/internal/credits"
	"atelier/internal/jobs"
	"atelier/internal/logging"
	"atelier/internal/services"
	"atelier/internal/services/generation"
)

const defaultDeadline = 10 * time.Minute

// Quoter prices a (kind, tier) submission.
type Quoter interface {
	Quote(kind jobs.Kind, tier jobs.Tier) (int64, error)
}

// Saver persists a session snapshot.
type Saver interface {
	Save(ctx context.Context, session jobs.Session, account credits.Account) error
}

// Deps are the collaborators a Coordinator drives.
type Deps struct {
	Registry  *jobs.Registry
	Ledger    *credits.Ledger
	Assets    *assets.Store
	Pricing   Quoter
	Gate      *authgate.Gate
	Generator generation.Generator
	Saver     Saver
	Logger    *slog.Logger
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithDeadline bounds each dispatch.
func WithDeadline(deadline time.Duration) Option {
	return func(c *Coordinator) {
		if deadline > 0 {
			c.deadline = deadline
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDSource overrides job id generation.
func WithIDSource(next func() string) Option {
	return func(c *Coordinator) {
		if next != nil {
			c.newID = next
		}
	}
}

// Coordinator owns the submission state machine.
type Coordinator struct {
	mu sync.Mutex

	registry  *jobs.Registry
	ledger    *credits.Ledger
	assets    *assets.Store
	pricing   Quoter
	chain     *chaining.Resolver
	gate      *authgate.Gate
	generator generation.Generator
	saver     Saver
	logger    *slog.Logger

	deadline time.Duration
	now      func() time.Time
	newID    func() string

	wg sync.WaitGroup
}

// New wires a coordinator.
func New(deps Deps, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry:  deps.Registry,
		ledger:    deps.Ledger,
		assets:    deps.Assets,
		pricing:   deps.Pricing,
		chain:     chaining.NewResolver(deps.Registry),
		gate:      deps.Gate,
		generator: deps.Generator,
		saver:     deps.Saver,
		logger:    logging.NewComponentLogger(deps.Logger, "submission"),
		deadline:  defaultDeadline,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit validates, prices and reserves credits for req, registers the job
// and dispatches it. Validation, chain and quota failures are returned
// before any job or ledger entry exists. The returned job is in processing.
func (c *Coordinator) Submit(ctx context.Context, req jobs.Request) (jobs.Job, error) {
	c.mu.Lock()
	job, err := c.admitLocked(ctx, req)
	c.mu.Unlock()
	if err != nil {
		return jobs.Job{}, err
	}
	c.dispatch(ctx, job)
	return job, nil
}

// Extend submits a continuation of a finished job.
func (c *Coordinator) Extend(ctx context.Context, parentJobID, directive string) (jobs.Job, error) {
	req, err := c.chain.Extend(parentJobID, directive)
	if err != nil {
		return jobs.Job{}, err
	}
	return c.Submit(ctx, req)
}

// Resubmit starts a new attempt on a failed job. It is refused while the
// session needs authorization.
func (c *Coordinator) Resubmit(ctx context.Context, jobID string) (jobs.Job, error) {
	c.mu.Lock()
	job, err := c.reopenLocked(ctx, jobID)
	c.mu.Unlock()
	if err != nil {
		return jobs.Job{}, err
	}
	c.dispatch(ctx, job)
	return job, nil
}

func (c *Coordinator) admitLocked(ctx context.Context, req jobs.Request) (jobs.Job, error) {
	if err := c.validate(req); err != nil {
		return jobs.Job{}, err
	}
	if req.ParentJobID != "" {
		parent, ok := c.registry.Get(req.ParentJobID)
		if !ok || parent.Status != jobs.StatusDone {
			return jobs.Job{}, services.Wrap(services.ErrChain, "submission", "submit",
				fmt.Sprintf("parent job %s is not done", req.ParentJobID), nil)
		}
	}
	cost, err := c.price(req.Kind, req.Tier, req.CostCredits)
	if err != nil {
		return jobs.Job{}, err
	}

	id := c.newID()
	token, err := c.ledger.Reserve(id, cost)
	if err != nil {
		return jobs.Job{}, err
	}

	job := jobs.Job{
		ID:            id,
		Kind:          req.Kind,
		Status:        jobs.StatusQueued,
		InputText:     strings.TrimSpace(req.InputText),
		References:    append([]jobs.Reference(nil), req.References...),
		ParentJobID:   req.ParentJobID,
		CostCredits:   cost,
		Tier:          req.Tier,
		Resolution:    req.Resolution,
		AspectRatio:   req.AspectRatio,
		SourceAssetID: req.SourceAssetID,
		ReservationID: string(token),
		Attempt:       1,
		CreatedAt:     c.now().UTC(),
	}
	if err := c.registry.Insert(job); err != nil {
		c.rollbackLocked(ctx, token)
		return jobs.Job{}, fmt.Errorf("register job: %w", err)
	}
	c.registry.Select(id)

	ctx = services.WithJobID(ctx, id)
	c.persistLocked(ctx)
	logging.WithContext(ctx, c.logger).Info("job queued",
		logging.String(logging.FieldEventType, "job_queued"),
		logging.String("kind", string(job.Kind)),
		logging.String("tier", string(job.Tier)),
		logging.Credits(cost),
		logging.Int("references", len(job.References)),
		logging.String("parent_job_id", job.ParentJobID),
	)
	return c.startLocked(ctx, id)
}

func (c *Coordinator) reopenLocked(ctx context.Context, jobID string) (jobs.Job, error) {
	if c.gate != nil && c.gate.NeedsAuthorization() {
		return jobs.Job{}, services.Wrap(services.ErrCredential, "submission", "resubmit",
			"authorization required; select a credential first", nil)
	}
	job, ok := c.registry.Get(jobID)
	if !ok {
		return jobs.Job{}, services.Wrap(services.ErrNotFound, "submission", "resubmit", "job "+jobID, nil)
	}
	if job.Status != jobs.StatusError {
		return jobs.Job{}, services.Wrap(services.ErrConflict, "submission", "resubmit",
			fmt.Sprintf("job %s is %s; only failed jobs can be retried", jobID, job.Status), nil)
	}
	if err := c.validate(jobs.Request{
		Kind:        job.Kind,
		InputText:   job.InputText,
		References:  job.References,
		Tier:        job.Tier,
		Resolution:  job.Resolution,
		AspectRatio: job.AspectRatio,
	}); err != nil {
		return jobs.Job{}, err
	}
	cost, err := c.price(job.Kind, job.Tier, 0)
	if err != nil {
		return jobs.Job{}, err
	}
	token, err := c.ledger.Reserve(jobID, cost)
	if err != nil {
		return jobs.Job{}, err
	}
	reopened, err := c.registry.Update(jobID, func(j *jobs.Job) error {
		return j.Reopen(string(token), cost)
	})
	if err != nil {
		c.rollbackLocked(ctx, token)
		return jobs.Job{}, fmt.Errorf("reopen job: %w", err)
	}
	c.registry.Select(jobID)

	ctx = services.WithJobID(ctx, jobID)
	c.persistLocked(ctx)
	logging.WithContext(ctx, c.logger).Info("job requeued",
		logging.String(logging.FieldEventType, "job_requeued"),
		logging.Int("attempt", reopened.Attempt),
		logging.Credits(cost),
	)
	return c.startLocked(ctx, jobID)
}

func (c *Coordinator) startLocked(ctx context.Context, id string) (jobs.Job, error) {
	job, err := c.registry.Update(id, (*jobs.Job).Start)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("start job: %w", err)
	}
	c.persistLocked(ctx)
	return job, nil
}

func (c *Coordinator) validate(req jobs.Request) error {
	if kind, ok := jobs.ParseKind(string(req.Kind)); !ok || kind != req.Kind {
		return services.Wrap(services.ErrValidation, "submission", "validate", fmt.Sprintf("unknown kind %q", req.Kind), nil)
	}
	if tier, ok := jobs.ParseTier(string(req.Tier)); !ok || tier != req.Tier {
		return services.Wrap(services.ErrValidation, "submission", "validate", fmt.Sprintf("unknown tier %q", req.Tier), nil)
	}
	if strings.TrimSpace(req.InputText) == "" && len(req.References) == 0 {
		return services.Wrap(services.ErrValidation, "submission", "validate", "a directive or at least one reference is required", nil)
	}
	if req.CostCredits < 0 {
		return services.Wrap(services.ErrValidation, "submission", "validate", "cost must be >= 0", nil)
	}
	if err := c.assets.Validate(req.References, req.Tier); err != nil {
		return err
	}
	if err := c.assets.ValidateResolution(req.Resolution, req.Tier); err != nil {
		return err
	}
	return assets.ValidateAspectRatio(req.AspectRatio)
}

func (c *Coordinator) price(kind jobs.Kind, tier jobs.Tier, override int64) (int64, error) {
	if override > 0 {
		return override, nil
	}
	if c.pricing == nil {
		return 0, services.Wrap(services.ErrConfiguration, "submission", "price", "no pricing table", nil)
	}
	return c.pricing.Quote(kind, tier)
}
