// Package applier applies and rolls back migrations against a database.
//
// Each migration runs in a transaction together with its ledger write, and a
// session-scoped database lock guards the whole run so two concurrent
// deploys cannot double-apply.
package applier

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailyhq/maily-migrate/migrate/ledger"
	"github.com/mailyhq/maily-migrate/migrate/source"
)

// DefaultLockTimeout bounds how long a run waits for the migration lock.
const DefaultLockTimeout = 30 * time.Second

// Applier executes migrations.
type Applier struct {
	db          *sql.DB
	provider    string
	ledger      *ledger.Ledger
	logger      zerolog.Logger
	lockTimeout time.Duration

	// lockConn pins the advisory lock to one session for the whole run.
	lockConn *sql.Conn
}

// New creates an applier for the given provider.
func New(db *sql.DB, provider string, led *ledger.Ledger, logger zerolog.Logger, lockTimeout time.Duration) *Applier {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Applier{
		db:          db,
		provider:    provider,
		ledger:      led,
		logger:      logger,
		lockTimeout: lockTimeout,
	}
}

// lockKey derives a stable lock identifier from the ledger table name.
func (a *Applier) lockKey() int64 {
	h := fnv.New64a()
	h.Write([]byte("maily-migrate:" + a.ledger.Table()))
	return int64(h.Sum64())
}

// Lock acquires the migration lock. Advisory locks are session scoped, so the
// lock is taken on a dedicated connection that stays open until Unlock.
func (a *Applier) Lock(ctx context.Context) error {
	if a.provider == "sqlite" {
		// SQLite serializes writers through its file lock.
		return nil
	}
	if a.lockConn != nil {
		return fmt.Errorf("migration lock already held")
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to open lock connection: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, a.lockTimeout)
	defer cancel()

	switch a.provider {
	case "postgres":
		if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", a.lockKey()); err != nil {
			conn.Close()
			return fmt.Errorf("failed to acquire migration lock (another run in progress?): %w", err)
		}
	case "mysql":
		var acquired sql.NullInt64
		name := fmt.Sprintf("maily-migrate:%s", a.ledger.Table())
		err := conn.QueryRowContext(lockCtx, "SELECT GET_LOCK(?, ?)", name, int(a.lockTimeout.Seconds())).Scan(&acquired)
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		if !acquired.Valid || acquired.Int64 != 1 {
			conn.Close()
			return fmt.Errorf("migration lock is held by another run")
		}
	}

	a.lockConn = conn
	a.logger.Debug().Str("provider", a.provider).Msg("acquired migration lock")
	return nil
}

// Unlock releases the migration lock and the connection holding it.
func (a *Applier) Unlock(ctx context.Context) {
	if a.lockConn == nil {
		return
	}
	defer func() {
		a.lockConn.Close()
		a.lockConn = nil
	}()

	switch a.provider {
	case "postgres":
		if _, err := a.lockConn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", a.lockKey()); err != nil {
			a.logger.Warn().Err(err).Msg("failed to release migration lock")
		}
	case "mysql":
		name := fmt.Sprintf("maily-migrate:%s", a.ledger.Table())
		if _, err := a.lockConn.ExecContext(ctx, "SELECT RELEASE_LOCK(?)", name); err != nil {
			a.logger.Warn().Err(err).Msg("failed to release migration lock")
		}
	}
}

// Apply runs a migration and records it in the ledger, both in one
// transaction.
func (a *Applier) Apply(ctx context.Context, m source.Migration) error {
	start := time.Now()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %s failed: %w", m.Name, err)
	}

	rec := &ledger.Record{
		Name:            m.Name,
		AppliedAt:       time.Now().UTC(),
		Checksum:        m.Checksum,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		Source:          "fs",
		Description:     m.Description,
	}
	if err := a.ledger.Insert(ctx, tx, rec); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", m.Name, err)
	}

	a.logger.Info().
		Str("migration", m.Name).
		Dur("duration", time.Since(start)).
		Msg("applied migration")
	return nil
}

// Rollback runs a migration's down.sql and deletes its ledger row, both in
// one transaction.
func (a *Applier) Rollback(ctx context.Context, m source.Migration) error {
	if !m.HasDown() {
		return fmt.Errorf("migration %s has no %s, cannot roll back", m.Name, source.DownFile)
	}

	start := time.Now()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("rollback of %s failed: %w", m.Name, err)
	}

	if err := a.ledger.Delete(ctx, tx, m.Name); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollback of %s: %w", m.Name, err)
	}

	a.logger.Info().
		Str("migration", m.Name).
		Dur("duration", time.Since(start)).
		Msg("rolled back migration")
	return nil
}
