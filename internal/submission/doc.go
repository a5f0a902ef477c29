// Package submission drives generation jobs through their lifecycle.
//
// A submission is validated, priced and paid for with a credit reservation
// before a job exists. The job is then registered as queued, moved to
// processing and handed to the generator on its own goroutine. Each attempt
// ends in exactly one terminal transition: done with the reservation
// finalized, or error with the reservation rolled back. Credential failures
// are routed through the authorization gate.
//
// Every local mutation runs under the Coordinator's mutex and is followed by
// a persisted snapshot, so a restart sees a consistent session and ledger.
// Recover settles whatever a previous process left in flight.
package submission
