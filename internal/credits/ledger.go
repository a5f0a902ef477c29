package credits

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"atelier/internal/services"
)

// Token identifies one reservation.
type Token string

// State is the settlement state of a reservation.
type State string

const (
	StateOpen       State = "open"
	StateFinalized  State = "finalized"
	StateRolledBack State = "rolled_back"
)

// Reason labels a ledger entry.
type Reason string

const (
	ReasonReserve  Reason = "reserve"
	ReasonFinalize Reason = "finalize"
	ReasonRollback Reason = "rollback"
	ReasonGrant    Reason = "grant"
)

// Entry is one append-only ledger record. Delta is the change applied to the
// spendable balance.
type Entry struct {
	JobID  string    `json:"job_id,omitempty"`
	Token  Token     `json:"token,omitempty"`
	Delta  int64     `json:"delta"`
	Reason Reason    `json:"reason"`
	Note   string    `json:"note,omitempty"`
	At     time.Time `json:"at"`
}

// Reservation is a provisional hold against the balance.
type Reservation struct {
	Token     Token      `json:"token"`
	JobID     string     `json:"job_id"`
	Amount    int64      `json:"amount"`
	State     State      `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	SettledAt *time.Time `json:"settled_at"`
}

// Account is the serializable view of a Ledger.
type Account struct {
	Balance      int64         `json:"balance"`
	Ledger       []Entry       `json:"ledger"`
	Reservations []Reservation `json:"reservations"`
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for entries.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithTokenSource overrides reservation token generation.
func WithTokenSource(next func() string) Option {
	return func(l *Ledger) {
		if next != nil {
			l.newToken = next
		}
	}
}

// Ledger is the single source of truth for the spendable balance. All methods
// are safe for concurrent use.
type Ledger struct {
	mu           sync.Mutex
	balance      int64
	entries      []Entry
	reservations map[Token]*Reservation
	order        []Token
	now          func() time.Time
	newToken     func() string
}

// NewLedger returns a ledger holding the given opening balance. The opening
// balance is recorded as a grant when positive.
func NewLedger(opening int64, opts ...Option) (*Ledger, error) {
	if opening < 0 {
		return nil, services.Wrap(services.ErrValidation, "credits", "open", "opening balance must be >= 0", nil)
	}
	l := &Ledger{
		reservations: make(map[Token]*Reservation),
		now:          time.Now,
		newToken:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	if opening > 0 {
		l.balance = opening
		l.appendLocked(Entry{Delta: opening, Reason: ReasonGrant, Note: "opening balance"})
	}
	return l, nil
}

// Reserve earmarks amount for jobID. It fails with a quota error when the
// balance is insufficient, leaving the ledger untouched.
func (l *Ledger) Reserve(jobID string, amount int64) (Token, error) {
	if amount < 0 {
		return "", services.Wrap(services.ErrValidation, "credits", "reserve", "amount must be >= 0", nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balance < amount {
		return "", services.Wrap(services.ErrQuota, "credits", "reserve",
			fmt.Sprintf("need %d credits, have %d", amount, l.balance), nil)
	}
	token := Token(l.newToken())
	if _, exists := l.reservations[token]; exists {
		return "", fmt.Errorf("credits reserve: duplicate token %s", token)
	}
	at := l.stamp()
	l.reservations[token] = &Reservation{
		Token:     token,
		JobID:     jobID,
		Amount:    amount,
		State:     StateOpen,
		CreatedAt: at,
	}
	l.order = append(l.order, token)
	l.balance -= amount
	l.entries = append(l.entries, Entry{JobID: jobID, Token: token, Delta: -amount, Reason: ReasonReserve, At: at})
	return token, nil
}

// Finalize converts a reservation into a permanent debit. Settled tokens are
// left untouched and report the state they ended in.
func (l *Ledger) Finalize(token Token) (State, error) {
	return l.settle(token, StateFinalized)
}

// Rollback returns the reserved amount to the balance. Settled tokens are left
// untouched and report the state they ended in.
func (l *Ledger) Rollback(token Token) (State, error) {
	return l.settle(token, StateRolledBack)
}

func (l *Ledger) settle(token Token, target State) (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.reservations[token]
	if !ok {
		return "", fmt.Errorf("credits: unknown reservation %q", token)
	}
	if res.State != StateOpen {
		return res.State, nil
	}
	at := l.stamp()
	res.State = target
	res.SettledAt = &at
	entry := Entry{JobID: res.JobID, Token: token, Reason: ReasonFinalize, At: at}
	if target == StateRolledBack {
		l.balance += res.Amount
		entry.Delta = res.Amount
		entry.Reason = ReasonRollback
	}
	l.entries = append(l.entries, entry)
	return target, nil
}

// Grant adds credits to the balance.
func (l *Ledger) Grant(amount int64, note string) error {
	if amount <= 0 {
		return services.Wrap(services.ErrValidation, "credits", "grant", "amount must be positive", nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance += amount
	l.appendLocked(Entry{Delta: amount, Reason: ReasonGrant, Note: note})
	return nil
}

// Balance returns the current spendable balance.
func (l *Ledger) Balance() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Reservation returns a copy of the reservation for token.
func (l *Ledger) Reservation(token Token) (Reservation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.reservations[token]
	if !ok {
		return Reservation{}, false
	}
	return cloneReservation(*res), true
}

// Open lists reservations that are neither finalized nor rolled back.
func (l *Ledger) Open() []Reservation {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Reservation
	for _, token := range l.order {
		if res := l.reservations[token]; res.State == StateOpen {
			out = append(out, cloneReservation(*res))
		}
	}
	return out
}

// Entries returns a copy of the ledger in append order.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Snapshot captures the ledger for persistence.
func (l *Ledger) Snapshot() Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	account := Account{
		Balance:      l.balance,
		Ledger:       make([]Entry, len(l.entries)),
		Reservations: make([]Reservation, 0, len(l.order)),
	}
	copy(account.Ledger, l.entries)
	for _, token := range l.order {
		account.Reservations = append(account.Reservations, cloneReservation(*l.reservations[token]))
	}
	return account
}

// Restore replaces the ledger contents with a persisted account.
func (l *Ledger) Restore(account Account) error {
	if account.Balance < 0 {
		return fmt.Errorf("credits restore: negative balance %d", account.Balance)
	}
	reservations := make(map[Token]*Reservation, len(account.Reservations))
	order := make([]Token, 0, len(account.Reservations))
	for _, res := range account.Reservations {
		if res.Token == "" {
			return fmt.Errorf("credits restore: reservation without token")
		}
		if _, dup := reservations[res.Token]; dup {
			return fmt.Errorf("credits restore: duplicate token %s", res.Token)
		}
		switch res.State {
		case StateOpen, StateFinalized, StateRolledBack:
		default:
			return fmt.Errorf("credits restore: token %s has unknown state %q", res.Token, res.State)
		}
		cp := cloneReservation(res)
		reservations[res.Token] = &cp
		order = append(order, res.Token)
	}
	entries := make([]Entry, len(account.Ledger))
	copy(entries, account.Ledger)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = account.Balance
	l.entries = entries
	l.reservations = reservations
	l.order = order
	return nil
}

func (l *Ledger) appendLocked(entry Entry) {
	entry.At = l.stamp()
	l.entries = append(l.entries, entry)
}

func (l *Ledger) stamp() time.Time {
	return l.now().UTC()
}

func cloneReservation(res Reservation) Reservation {
	if res.SettledAt != nil {
		ts := *res.SettledAt
		res.SettledAt = &ts
	}
	return res
}
