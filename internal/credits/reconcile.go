package credits

import "fmt"

// Reconcile replays the ledger and checks it against the balance and the
// reservation states. It returns the first inconsistency found.
func (a Account) Reconcile() error {
	var replayed int64
	reserved := make(map[Token]int64)
	settled := make(map[Token]Reason)
	for i, e := range a.Ledger {
		replayed += e.Delta
		switch e.Reason {
		case ReasonReserve:
			if _, dup := reserved[e.Token]; dup {
				return fmt.Errorf("entry %d: token %s reserved twice", i, e.Token)
			}
			reserved[e.Token] = -e.Delta
		case ReasonFinalize, ReasonRollback:
			if _, ok := reserved[e.Token]; !ok {
				return fmt.Errorf("entry %d: %s of unreserved token %s", i, e.Reason, e.Token)
			}
			if prior, done := settled[e.Token]; done {
				return fmt.Errorf("entry %d: token %s settled twice (%s then %s)", i, e.Token, prior, e.Reason)
			}
			if e.Reason == ReasonRollback && e.Delta != reserved[e.Token] {
				return fmt.Errorf("entry %d: rollback of %s returned %d, reserved %d", i, e.Token, e.Delta, reserved[e.Token])
			}
			settled[e.Token] = e.Reason
		}
	}
	if replayed != a.Balance {
		return fmt.Errorf("ledger sums to %d but balance is %d", replayed, a.Balance)
	}
	for _, res := range a.Reservations {
		reason, done := settled[res.Token]
		switch res.State {
		case StateOpen:
			if done {
				return fmt.Errorf("reservation %s is open but was settled by %s", res.Token, reason)
			}
		case StateFinalized:
			if reason != ReasonFinalize {
				return fmt.Errorf("reservation %s is finalized without a finalize entry", res.Token)
			}
		case StateRolledBack:
			if reason != ReasonRollback {
				return fmt.Errorf("reservation %s is rolled back without a rollback entry", res.Token)
			}
		}
	}
	return nil
}
