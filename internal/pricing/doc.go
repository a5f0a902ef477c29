// Package pricing holds the (kind, tier) credit table used to price every
// submission, including chained ones.
package pricing
