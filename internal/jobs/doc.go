// Package jobs defines the generation Job model and the in-memory Registry
// that holds a session's jobs.
//
// A Job moves through queued, processing, and then exactly one of done or
// error for each submission attempt. The transition helpers on Job are the
// only way to change status, and the Registry refuses edges outside that
// graph. A job in error may be reopened for a new attempt; a done job never
// changes again.
//
// The Registry keeps jobs newest first together with a single selection
// cursor. The cursor always names a job that is still present, or nothing.
// Treat this package as the single source of truth for job semantics; other
// packages mutate jobs only through Registry.Update or Registry.UpdateStatus.
package jobs
