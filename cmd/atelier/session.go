package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"atelier/internal/assets"
	"atelier/internal/authgate"
	"atelier/internal/config"
	"atelier/internal/credentials"
	"atelier/internal/credits"
	"atelier/internal/jobs"
	"atelier/internal/kvstore"
	"atelier/internal/logging"
	"atelier/internal/persistence"
	"atelier/internal/pricing"
	"atelier/internal/services"
	"atelier/internal/services/generation"
	"atelier/internal/submission"
)

// session is one process's view of the persisted session.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	kv       *kvstore.SQLite
	store    *persistence.Adapter
	creds    *credentials.Store
	registry *jobs.Registry
	ledger   *credits.Ledger
	gate     *authgate.Gate
	assets   *assets.Store
	pricing  *pricing.Table
	coord    *submission.Coordinator
}

// withSession opens the session, runs fn, waits for dispatched jobs and
// closes the database.
func (c *commandContext) withSession(cmd *cobra.Command, fn func(context.Context, *session) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	ctx := services.WithRequestID(cmd.Context(), uuid.NewString())
	s, err := openSession(ctx, cfg, cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.close()

	runErr := fn(ctx, s)
	if waitErr := s.coord.Wait(ctx); waitErr != nil && runErr == nil {
		runErr = fmt.Errorf("waiting for jobs: %w", waitErr)
	}
	return runErr
}

func openSession(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) (*session, error) {
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	kv, err := kvstore.OpenFromConfig(cfg)
	if err != nil {
		if errors.Is(err, kvstore.ErrLocked) {
			return nil, fmt.Errorf("another atelier process owns %s; wait for it to finish", cfg.DatabasePath())
		}
		return nil, err
	}
	s := &session{cfg: cfg, logger: logger, kv: kv}
	if err := s.wire(ctx, in, out); err != nil {
		_ = kv.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) wire(ctx context.Context, in io.Reader, out io.Writer) error {
	table, err := pricing.FromConfig(s.cfg)
	if err != nil {
		return err
	}
	ingestor, err := assets.NewFileIngestor(s.cfg.Paths.AssetDir)
	if err != nil {
		return err
	}
	ledger, err := credits.NewLedger(s.cfg.Credits.InitialBalance)
	if err != nil {
		return err
	}

	s.store = persistence.New(s.kv, s.logger)
	s.creds = credentials.New(s.kv, s.cfg.Generation.APIKey,
		credentials.WithPrompt(in, out, stdinIsTerminal(in)))
	if err := s.creds.Load(ctx); err != nil {
		return err
	}
	s.pricing = table
	s.ledger = ledger
	s.registry = jobs.NewRegistry()
	s.assets = assets.NewStore(ingestor, assets.LimitsFromConfig(s.cfg))
	s.gate = authgate.New(ledger, s.registry, s.creds, s.logger)
	s.coord = submission.New(submission.Deps{
		Registry:  s.registry,
		Ledger:    ledger,
		Assets:    s.assets,
		Pricing:   table,
		Gate:      s.gate,
		Generator: generation.NewFromConfig(s.cfg, s.creds.APIKey),
		Saver:     s.store,
		Logger:    s.logger,
	}, submission.WithDeadline(s.cfg.DispatchDeadline()))

	return s.restore(ctx)
}

func (s *session) restore(ctx context.Context) error {
	saved, account, found, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !found {
		sessionState, accountState := s.coord.Snapshot()
		return s.store.Save(ctx, sessionState, accountState)
	}
	if err := account.Reconcile(); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "credit ledger does not reconcile", "ledger_mismatch",
			logging.Error(err),
			logging.String(logging.FieldImpact, "balance shown may not match ledger history"),
		)
	}
	if err := s.coord.Restore(saved, account); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if _, err := s.coord.Recover(ctx); err != nil {
		return fmt.Errorf("recover session: %w", err)
	}
	return nil
}

func (s *session) close() {
	if err := s.kv.Close(); err != nil {
		s.logger.Warn("close session database", logging.Error(err))
	}
}

// resolveJobID accepts a full id or a unique prefix.
func (s *session) resolveJobID(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", errors.New("job id is required")
	}
	if _, ok := s.registry.Get(arg); ok {
		return arg, nil
	}
	var match string
	for _, job := range s.registry.List() {
		if strings.HasPrefix(job.ID, arg) {
			if match != "" {
				return "", fmt.Errorf("job id prefix %q is ambiguous", arg)
			}
			match = job.ID
		}
	}
	if match == "" {
		return "", services.Wrap(services.ErrNotFound, "cli", "resolve", "job "+arg, nil)
	}
	return match, nil
}
