// Command atelier submits media generation jobs, pays for them from a local
// credit balance, and keeps the session in a local database.
//
// Every invocation restores the previous session, settles anything an
// earlier process left in flight, runs one command, and waits for the jobs
// it dispatched before exiting.
package main
