// Package migrate is the migration engine for the Maily platform databases.
// It composes the on-disk migration source, the migration_history ledger and
// the transactional applier behind one API used by the CLI.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/mailyhq/maily-migrate/migrate/applier"
	"github.com/mailyhq/maily-migrate/migrate/ledger"
	"github.com/mailyhq/maily-migrate/migrate/report"
	"github.com/mailyhq/maily-migrate/migrate/source"
)

// ErrOrphaned marks a ledger row whose migration directory no longer exists
// on disk, so its down.sql cannot be run. DropOrphan removes such rows.
var ErrOrphaned = errors.New("migration directory is missing")

// Options configures an Engine.
type Options struct {
	DB       *sql.DB
	Provider string // postgres, mysql, sqlite
	Fs       afero.Fs
	Dir      string // migrations directory
	SeedsDir string

	LedgerTable string
	LockTimeout time.Duration
	Logger      zerolog.Logger

	// Environment and DatabaseLabel annotate reports. DatabaseLabel must
	// already be credential-free.
	Environment   string
	DatabaseLabel string
}

// Engine runs migration operations against one database.
type Engine struct {
	opts    Options
	fs      afero.Fs
	ledger  *ledger.Ledger
	applier *applier.Applier
	logger  zerolog.Logger
}

// NewEngine creates an engine from options.
func NewEngine(opts Options) (*Engine, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("migrations directory is required")
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	led, err := ledger.New(opts.DB, opts.Provider, opts.LedgerTable)
	if err != nil {
		return nil, err
	}

	return &Engine{
		opts:    opts,
		fs:      opts.Fs,
		ledger:  led,
		applier: applier.New(opts.DB, opts.Provider, led, opts.Logger, opts.LockTimeout),
		logger:  opts.Logger,
	}, nil
}

// Deploy applies every pending migration in lexicographic order and returns
// the names applied. The whole run holds the migration lock.
func (e *Engine) Deploy(ctx context.Context) ([]string, error) {
	if err := e.applier.CheckServerVersion(ctx); err != nil {
		return nil, err
	}
	if err := e.ledger.EnsureTable(ctx); err != nil {
		return nil, err
	}
	if err := e.applier.Lock(ctx); err != nil {
		return nil, err
	}
	defer e.applier.Unlock(ctx)

	migrations, err := source.Discover(e.fs, e.opts.Dir)
	if err != nil {
		return nil, err
	}

	available := make([]string, len(migrations))
	byName := make(map[string]source.Migration, len(migrations))
	for i, m := range migrations {
		available[i] = m.Name
		byName[m.Name] = m
	}

	pending, err := e.ledger.Pending(ctx, available)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		e.logger.Info().Msg("no pending migrations")
		return nil, nil
	}

	var applied []string
	for _, name := range pending {
		if err := e.applier.Apply(ctx, byName[name]); err != nil {
			return applied, err
		}
		applied = append(applied, name)
	}

	return applied, nil
}

// Status summarizes applied, pending, drifted and orphaned migrations.
func (e *Engine) Status(ctx context.Context) (*report.Status, error) {
	if err := e.ledger.EnsureTable(ctx); err != nil {
		return nil, err
	}

	migrations, err := source.Discover(e.fs, e.opts.Dir)
	if err != nil {
		return nil, err
	}
	records, err := e.ledger.All(ctx)
	if err != nil {
		return nil, err
	}

	onDisk := make(map[string]source.Migration, len(migrations))
	for _, m := range migrations {
		onDisk[m.Name] = m
	}
	inLedger := make(map[string]ledger.Record, len(records))
	for _, rec := range records {
		inLedger[rec.Name] = rec
	}

	status := &report.Status{
		Environment: e.opts.Environment,
		Database:    e.opts.DatabaseLabel,
		GeneratedAt: time.Now().UTC(),
	}

	for _, rec := range records {
		status.Applied = append(status.Applied, report.Applied{
			Name:            rec.Name,
			AppliedAt:       rec.AppliedAt,
			ExecutionTimeMs: rec.ExecutionTimeMs,
			Description:     rec.Description,
		})

		m, ok := onDisk[rec.Name]
		if !ok {
			status.Orphaned = append(status.Orphaned, rec.Name)
			continue
		}
		if m.Checksum != rec.Checksum {
			status.Drifted = append(status.Drifted, report.Drift{
				Name:           rec.Name,
				LedgerChecksum: rec.Checksum,
				FileChecksum:   m.Checksum,
			})
		}
	}

	for _, m := range migrations {
		if _, ok := inLedger[m.Name]; !ok {
			status.Pending = append(status.Pending, m.Name)
		}
	}

	return status, nil
}

// Rollback rolls back the named migration, or the most recently applied one
// when name is empty. It returns the name rolled back.
func (e *Engine) Rollback(ctx context.Context, name string) (string, error) {
	if err := e.applier.CheckServerVersion(ctx); err != nil {
		return "", err
	}
	if err := e.ledger.EnsureTable(ctx); err != nil {
		return "", err
	}
	if err := e.applier.Lock(ctx); err != nil {
		return "", err
	}
	defer e.applier.Unlock(ctx)

	applied, err := e.ledger.AppliedNames(ctx)
	if err != nil {
		return "", err
	}
	if len(applied) == 0 {
		return "", fmt.Errorf("no applied migrations to roll back")
	}

	if name == "" {
		sort.Strings(applied)
		name = applied[len(applied)-1]
	} else {
		found := false
		for _, n := range applied {
			if n == name {
				found = true
				break
			}
		}
		if !found {
			return "", fmt.Errorf("migration %s is not applied", name)
		}
	}

	exists, err := afero.DirExists(e.fs, filepath.Join(e.opts.Dir, name))
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("cannot roll back %s: %w", name, ErrOrphaned)
	}

	m, err := source.Get(e.fs, e.opts.Dir, name)
	if err != nil {
		return "", err
	}

	if err := e.applier.Rollback(ctx, m); err != nil {
		return "", err
	}
	return name, nil
}

// DropOrphan removes the ledger row for a migration whose directory is gone
// from disk. It refuses to touch rows for migrations that still exist, since
// those have a down.sql and should be rolled back instead.
func (e *Engine) DropOrphan(ctx context.Context, name string) error {
	if err := e.ledger.EnsureTable(ctx); err != nil {
		return err
	}
	if err := e.applier.Lock(ctx); err != nil {
		return err
	}
	defer e.applier.Unlock(ctx)

	applied, err := e.ledger.AppliedNames(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, n := range applied {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("migration %s is not applied", name)
	}

	exists, err := afero.DirExists(e.fs, filepath.Join(e.opts.Dir, name))
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("migration %s exists on disk, roll it back instead", name)
	}

	tx, err := e.opts.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := e.ledger.Delete(ctx, tx, name); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	e.logger.Warn().Str("migration", name).Msg("dropped orphaned ledger row")
	return nil
}

// Reset rolls back every applied migration in reverse order, then reapplies
// everything. It returns the counts of rolled back and applied migrations.
func (e *Engine) Reset(ctx context.Context) (int, int, error) {
	if err := e.applier.CheckServerVersion(ctx); err != nil {
		return 0, 0, err
	}
	if err := e.ledger.EnsureTable(ctx); err != nil {
		return 0, 0, err
	}
	if err := e.applier.Lock(ctx); err != nil {
		return 0, 0, err
	}

	applied, err := e.ledger.AppliedNames(ctx)
	if err != nil {
		e.applier.Unlock(ctx)
		return 0, 0, err
	}
	sort.Strings(applied)

	rolledBack := 0
	for i := len(applied) - 1; i >= 0; i-- {
		m, err := source.Get(e.fs, e.opts.Dir, applied[i])
		if err != nil {
			e.applier.Unlock(ctx)
			return rolledBack, 0, err
		}
		if err := e.applier.Rollback(ctx, m); err != nil {
			e.applier.Unlock(ctx)
			return rolledBack, 0, err
		}
		rolledBack++
	}
	e.applier.Unlock(ctx)

	reapplied, err := e.Deploy(ctx)
	return rolledBack, len(reapplied), err
}

// Validate checks the migrations directory and the ledger for problems:
// structural findings from the source tree, checksum drift, and orphaned
// ledger rows.
func (e *Engine) Validate(ctx context.Context) ([]source.Finding, error) {
	findings, err := source.Validate(e.fs, e.opts.Dir)
	if err != nil {
		return nil, err
	}

	status, err := e.Status(ctx)
	if err != nil {
		return nil, err
	}

	for _, d := range status.Drifted {
		findings = append(findings, source.Finding{
			Migration: d.Name,
			Severity:  source.SeverityError,
			Message:   "migration file was edited after it was applied (checksum drift)",
		})
	}
	for _, name := range status.Orphaned {
		findings = append(findings, source.Finding{
			Migration: name,
			Severity:  source.SeverityWarning,
			Message:   "ledger row has no migration directory on disk",
		})
	}

	return findings, nil
}

// Seed executes every .sql file in the seeds directory in lexicographic
// order and returns the file names run.
func (e *Engine) Seed(ctx context.Context) ([]string, error) {
	if e.opts.SeedsDir == "" {
		return nil, fmt.Errorf("seeds directory is not configured")
	}

	entries, err := afero.ReadDir(e.fs, e.opts.SeedsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read seeds directory %s: %w", e.opts.SeedsDir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	var ran []string
	for _, name := range files {
		seedSQL, err := afero.ReadFile(e.fs, filepath.Join(e.opts.SeedsDir, name))
		if err != nil {
			return ran, fmt.Errorf("failed to read seed %s: %w", name, err)
		}

		tx, err := e.opts.DB.BeginTx(ctx, nil)
		if err != nil {
			return ran, fmt.Errorf("failed to begin transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, string(seedSQL)); err != nil {
			_ = tx.Rollback()
			return ran, fmt.Errorf("seed %s failed: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return ran, fmt.Errorf("failed to commit seed %s: %w", name, err)
		}

		e.logger.Info().Str("seed", name).Msg("applied seed")
		ran = append(ran, name)
	}

	return ran, nil
}
