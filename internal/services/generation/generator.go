package generation

import (
	"context"
	"time"

	"atelier/internal/config"
	"atelier/internal/jobs"
)

// Request is one call to the generation service.
type Request struct {
	JobID           string           `json:"job_id"`
	Attempt         int              `json:"attempt"`
	Kind            jobs.Kind        `json:"kind"`
	InputText       string           `json:"input_text,omitempty"`
	References      []jobs.Reference `json:"references"`
	Tier            jobs.Tier        `json:"tier"`
	Resolution      string           `json:"resolution,omitempty"`
	AspectRatio     string           `json:"aspect_ratio,omitempty"`
	ParentOutputRef string           `json:"parent_output_ref,omitempty"`
}

// Result is a successful generation.
type Result struct {
	ResultRef       string  `json:"result_ref"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// Generator produces an artifact for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// RequestFromJob builds the service request for the job's current attempt.
func RequestFromJob(job jobs.Job) Request {
	req := Request{
		JobID:       job.ID,
		Attempt:     job.Attempt,
		Kind:        job.Kind,
		InputText:   job.InputText,
		References:  append([]jobs.Reference(nil), job.References...),
		Tier:        job.Tier,
		Resolution:  job.Resolution,
		AspectRatio: job.AspectRatio,
	}
	for _, ref := range job.References {
		if ref.Role == jobs.RoleContinuation {
			req.ParentOutputRef = ref.Handle
			break
		}
	}
	return req
}

// NewFromConfig returns the HTTP client when a base URL is configured and the
// synthetic generator otherwise. keys supplies the bearer key per request.
func NewFromConfig(cfg *config.Config, keys func() string) Generator {
	if cfg.Synthetic() {
		return NewSynthetic(cfg.SyntheticDelay())
	}
	return NewClient(Config{
		BaseURL:        cfg.Generation.BaseURL,
		APIKey:         cfg.Generation.APIKey,
		TimeoutSeconds: cfg.Generation.TimeoutSeconds,
	},
		WithKeySource(keys),
		WithRetryMaxAttempts(cfg.Generation.RetryAttempts),
	)
}

var _ Generator = (*Client)(nil)
var _ Generator = (*Synthetic)(nil)

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
