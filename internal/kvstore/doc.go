// Package kvstore provides the namespaced key-value byte store that backs
// session persistence and stored credentials.
//
// SQLite is the durable implementation: one kv table, a user_version guard,
// WAL journaling, and retry on SQLITE_BUSY. Opening it takes an exclusive file
// lock next to the database so a single process owns the session at a time.
// Memory is a map-backed implementation for tests.
package kvstore
