// Package preflight provides readiness checks for the filesystem paths,
// pricing table and generation service that atelier depends on.
//
// The CLI "atelier config check" command runs RunAll and prints one line per
// check. Checks for the remote service are skipped when the synthetic
// generator is configured.
package preflight
