// Package batch submits one job per selected gallery asset under a shared
// configuration.
package batch
