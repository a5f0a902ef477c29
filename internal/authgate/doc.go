// Package authgate runs the credential-failure protocol: a generation that
// failed for lack of a usable paid credential ends its job, refunds its
// credits, and raises a session-wide flag until the user selects a credential.
//
// Retries are refused while the flag is up. Authorize asks the host for a
// credential and lowers the flag once one is available.
package authgate
