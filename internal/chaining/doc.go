// Package chaining builds "extend" requests that continue from the output of
// a finished job.
package chaining
