// Package generation talks to the remote generative-inference service.
//
// # Entry Points
//
// NewClient: HTTP JSON client posting to {base_url}/generations.
// NewSynthetic: offline generator used when no base URL is configured.
// NewFromConfig: picks one of the two from configuration.
//
// # Failure Classification
//
// This package is the only place that inspects raw service failures. Every
// error returned from Generate carries exactly one of services.ErrCredential
// or services.ErrTransport, so callers classify with errors.Is.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx and network timeouts with
// exponential backoff, honoring Retry-After. Credential failures and context
// cancellation stop retries immediately.
package generation
