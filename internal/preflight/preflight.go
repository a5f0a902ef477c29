package preflight

import (
	"context"

	"atelier/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Skipped bool   `json:"skipped,omitempty"`
	Detail  string `json:"detail"`
}

// CredentialChecker reports whether an API key is available.
type CredentialChecker interface {
	HasCredential(ctx context.Context) (bool, error)
}

// RunAll executes every applicable check for cfg. creds may be nil, in which
// case only the configured api_key counts.
func RunAll(ctx context.Context, cfg *config.Config, creds CredentialChecker) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Asset directory", cfg.Paths.AssetDir),
		CheckPricing(cfg),
	}

	if cfg.Synthetic() {
		results = append(results,
			Result{Name: "Generation service", Passed: true, Skipped: true, Detail: "synthetic generator (no base_url)"},
		)
		return results
	}

	results = append(results, CheckCredential(ctx, cfg, creds))
	results = append(results, CheckGenerationService(ctx, cfg.Generation.BaseURL, cfg.Generation.APIKey))
	return results
}

// Passed reports whether every non-skipped check passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
