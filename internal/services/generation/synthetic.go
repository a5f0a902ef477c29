package generation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"atelier/internal/jobs"
	"atelier/internal/services"
)

// Synthetic stands in for the remote service when none is configured.
// Handles depend only on the request, so repeated runs are reproducible.
type Synthetic struct {
	delay time.Duration
}

// NewSynthetic returns a generator that answers after delay.
func NewSynthetic(delay time.Duration) *Synthetic {
	if delay < 0 {
		delay = 0
	}
	return &Synthetic{delay: delay}
}

// Generate waits for the configured delay and returns a synthetic:// handle.
func (s *Synthetic) Generate(ctx context.Context, req Request) (Result, error) {
	if err := sleepContext(ctx, s.delay); err != nil {
		return Result{}, services.Wrap(services.ErrTransport, "generation", "synthetic", "interrupted", err)
	}
	sum := sha256.New()
	fmt.Fprintf(sum, "%s\x00%d\x00%s\x00%s\x00%s", req.JobID, req.Attempt, req.Kind, req.Tier, strings.TrimSpace(req.InputText))
	for _, ref := range req.References {
		fmt.Fprintf(sum, "\x00%s:%s", ref.Role, ref.Handle)
	}
	digest := hex.EncodeToString(sum.Sum(nil))[:16]
	return Result{
		ResultRef:       fmt.Sprintf("synthetic://%s/%s", req.Kind, digest),
		DurationSeconds: syntheticDuration(req.Kind),
	}, nil
}

func syntheticDuration(kind jobs.Kind) float64 {
	switch kind {
	case jobs.KindVideo:
		return 8
	case jobs.KindAudio:
		return 30
	default:
		return 0
	}
}
