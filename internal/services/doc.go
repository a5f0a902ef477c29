// Package services defines shared utilities consumed by the orchestrator
// components and the generation service adapter.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, component names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper. Callers classify
//     failures with errors.Is against the markers, never by matching text.
//   - FailureKind, the single translation from a dispatch failure to the
//     error kind persisted on a job.
//
// Use these helpers when wiring new components so error handling and
// observability stay uniform across the orchestrator.
package services
