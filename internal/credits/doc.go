// Package credits implements the session credit ledger.
//
// Spending follows reserve, then exactly one of finalize or rollback. Reserve
// decrements the balance immediately; rollback gives the amount back and
// finalize makes the debit permanent. Settling an already settled token is a
// no-op. Every state change appends one Entry, so the ledger can be replayed
// to reconcile the balance.
package credits
