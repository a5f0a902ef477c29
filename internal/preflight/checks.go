package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"atelier/internal/config"
	"atelier/internal/jobs"
	"atelier/internal/pricing"
)

const serviceCheckTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckPricing verifies that every kind and tier has a price.
func CheckPricing(cfg *config.Config) Result {
	const name = "Pricing table"

	table, err := pricing.FromConfig(cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	var missing []string
	for _, kind := range jobs.AllKinds() {
		for _, tier := range jobs.AllTiers() {
			if _, err := table.Quote(kind, tier); err != nil {
				missing = append(missing, fmt.Sprintf("%s/%s", kind, tier))
			}
		}
	}
	if len(missing) > 0 {
		return Result{Name: name, Detail: "no price for " + strings.Join(missing, ", ")}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d entries", len(table.Entries()))}
}

// CheckCredential verifies that a key is stored or configured.
func CheckCredential(ctx context.Context, cfg *config.Config, creds CredentialChecker) Result {
	const name = "Credential"

	if creds != nil {
		has, err := creds.HasCredential(ctx)
		if err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("lookup failed (%v)", err)}
		}
		if has {
			return Result{Name: name, Passed: true, Detail: "available"}
		}
	} else if strings.TrimSpace(cfg.Generation.APIKey) != "" {
		return Result{Name: name, Passed: true, Detail: "configured"}
	}
	return Result{Name: name, Detail: "missing (run atelier auth select)"}
}

// CheckGenerationService verifies the service answers and accepts the key.
// Any status other than 401/403 or a 5xx counts as reachable.
func CheckGenerationService(ctx context.Context, baseURL, apiKey string) Result {
	const name = "Generation service"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing base_url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, serviceCheckTimeout)
	defer cancel()

	client := &http.Client{Timeout: serviceCheckTimeout}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	if key := strings.TrimSpace(apiKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeServiceError(err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	case resp.StatusCode >= 500:
		return Result{Name: name, Detail: fmt.Sprintf("service error (%d)", resp.StatusCode)}
	default:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	}
}

func summarizeServiceError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (service unreachable)"
	}
	return fmt.Sprintf("unreachable (%v)", err)
}
