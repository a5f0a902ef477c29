// Package persistence snapshots the session and credit account into the
// key-value store under a versioned envelope.
package persistence
