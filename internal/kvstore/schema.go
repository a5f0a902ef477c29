package kvstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var layoutSQL string

// layoutVersion is stored in the database header as PRAGMA user_version.
// A fresh file reports 0.
const layoutVersion = 1

// ErrSchemaMismatch is returned when the file was written by a different
// layout of the kv table.
var ErrSchemaMismatch = errors.New("kv layout version mismatch")

// ensureLayout creates the kv table in a new file and refuses files written
// by another layout.
func (s *SQLite) ensureLayout(ctx context.Context) error {
	var stored int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&stored); err != nil {
		return fmt.Errorf("read kv layout version: %w", err)
	}
	switch stored {
	case layoutVersion:
		return nil
	case 0:
		return s.writeLayout(ctx)
	default:
		return fmt.Errorf("%w: %s has layout %d, this build reads %d; delete the file to start over",
			ErrSchemaMismatch, s.path, stored, layoutVersion)
	}
}

func (s *SQLite) writeLayout(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin kv layout: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, layoutSQL); err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", layoutVersion)); err != nil {
		return fmt.Errorf("stamp kv layout version: %w", err)
	}
	return tx.Commit()
}
