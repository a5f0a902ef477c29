package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"atelier/internal/credits"
	"atelier/internal/jobs"
	"atelier/internal/kvstore"
	"atelier/internal/logging"
)

const (
	// SchemaTag identifies the current envelope layout.
	SchemaTag = "atelier.session/v1"

	namespace = "session"
	key       = "current"
)

type envelope struct {
	Schema  string          `json:"schema"`
	SavedAt time.Time       `json:"saved_at"`
	Session jobs.Session    `json:"session"`
	Account credits.Account `json:"account"`
}

type header struct {
	Schema string `json:"schema"`
}

// Adapter reads and writes session snapshots.
type Adapter struct {
	store  kvstore.Store
	logger *slog.Logger
	now    func() time.Time
}

// New builds an adapter over store.
func New(store kvstore.Store, logger *slog.Logger) *Adapter {
	return &Adapter{
		store:  store,
		logger: logging.NewComponentLogger(logger, "persistence"),
		now:    time.Now,
	}
}

// Save writes the session and account as one envelope.
func (a *Adapter) Save(ctx context.Context, session jobs.Session, account credits.Account) error {
	payload, err := json.Marshal(envelope{
		Schema:  SchemaTag,
		SavedAt: a.now().UTC(),
		Session: session,
		Account: account,
	})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := a.store.Set(ctx, namespace, key, payload); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load returns the stored snapshot. found is false when nothing is stored or
// when a snapshot with an unknown schema tag was discarded.
func (a *Adapter) Load(ctx context.Context) (jobs.Session, credits.Account, bool, error) {
	raw, ok, err := a.store.Get(ctx, namespace, key)
	if err != nil {
		return jobs.Session{}, credits.Account{}, false, fmt.Errorf("load session: %w", err)
	}
	if !ok || len(raw) == 0 {
		return jobs.Session{}, credits.Account{}, false, nil
	}

	var head header
	if err := json.Unmarshal(raw, &head); err != nil {
		return jobs.Session{}, credits.Account{}, false, fmt.Errorf("decode session header: %w", err)
	}
	if head.Schema != SchemaTag {
		logging.WarnWithContext(logging.WithContext(ctx, a.logger), "discarding session with unknown schema",
			"session_schema_mismatch",
			logging.String("found_schema", head.Schema),
			logging.String("expected_schema", SchemaTag),
			logging.String(logging.FieldImpact, "previous jobs and ledger are not restored"),
			logging.String(logging.FieldErrorHint, "this session was written by an incompatible version"),
		)
		if err := a.store.Delete(ctx, namespace, key); err != nil {
			return jobs.Session{}, credits.Account{}, false, fmt.Errorf("discard session: %w", err)
		}
		return jobs.Session{}, credits.Account{}, false, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return jobs.Session{}, credits.Account{}, false, fmt.Errorf("decode session: %w", err)
	}
	return env.Session, env.Account, true, nil
}

// Clear deletes the stored snapshot.
func (a *Adapter) Clear(ctx context.Context) error {
	if err := a.store.Delete(ctx, namespace, key); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
