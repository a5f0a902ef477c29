// Package assets holds reference inputs as opaque handles and enforces the
// per-tier reference and resolution limits.
//
// Store validates references against the limits taken from configuration.
// FileIngestor copies local files into the asset directory, hashing them on
// the way, and hands back a content-addressed handle.
package assets
