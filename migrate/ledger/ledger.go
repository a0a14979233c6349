// Package ledger manages the migration history table.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"
)

// DefaultTable is the migration history table name.
const DefaultTable = "migration_history"

var tablePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Record is a row in the migration ledger.
type Record struct {
	Name            string
	AppliedAt       time.Time
	Checksum        string
	ExecutionTimeMs int64
	Source          string
	Description     string
}

// Ledger reads and writes the migration history table.
type Ledger struct {
	db       *sql.DB
	provider string
	table    string
}

// New creates a ledger for the given provider (postgres, mysql, sqlite).
func New(db *sql.DB, provider, table string) (*Ledger, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tablePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid ledger table name %q", table)
	}
	switch provider {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}
	return &Ledger{db: db, provider: provider, table: table}, nil
}

// Table returns the ledger table name.
func (l *Ledger) Table() string {
	return l.table
}

// EnsureTable creates the migration history table if it does not exist.
func (l *Ledger) EnsureTable(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, l.createTableSQL()); err != nil {
		return fmt.Errorf("failed to create ledger table %s: %w", l.table, err)
	}
	return nil
}

// Insert records an applied migration inside the caller's transaction, so the
// ledger row commits together with the migration itself.
func (l *Ledger) Insert(ctx context.Context, tx *sql.Tx, rec *Record) error {
	_, err := tx.ExecContext(ctx, l.insertSQL(),
		rec.Name,
		rec.AppliedAt,
		rec.Checksum,
		rec.ExecutionTimeMs,
		rec.Source,
		rec.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to record migration %s: %w", rec.Name, err)
	}
	return nil
}

// Delete removes a migration row. Only the rollback path calls this.
func (l *Ledger) Delete(ctx context.Context, tx *sql.Tx, name string) error {
	res, err := tx.ExecContext(ctx, l.deleteSQL(), name)
	if err != nil {
		return fmt.Errorf("failed to delete ledger row for %s: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("migration %s is not recorded in the ledger", name)
	}
	return nil
}

// All returns every ledger row ordered by migration name.
func (l *Ledger) All(ctx context.Context) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, l.selectAllSQL())
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var source, description sql.NullString
		if err := rows.Scan(&rec.Name, &rec.AppliedAt, &rec.Checksum, &rec.ExecutionTimeMs, &source, &description); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		rec.Source = source.String
		rec.Description = description.String
		records = append(records, rec)
	}

	return records, rows.Err()
}

// AppliedNames returns the names of all applied migrations.
func (l *Ledger) AppliedNames(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, l.selectNamesSQL())
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan migration name: %w", err)
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// Pending returns the available migrations that have no ledger row, in the
// order they were given.
func (l *Ledger) Pending(ctx context.Context, available []string) ([]string, error) {
	applied, err := l.AppliedNames(ctx)
	if err != nil {
		return nil, err
	}

	appliedSet := make(map[string]bool, len(applied))
	for _, name := range applied {
		appliedSet[name] = true
	}

	var pending []string
	for _, name := range available {
		if !appliedSet[name] {
			pending = append(pending, name)
		}
	}

	return pending, nil
}

// Checksums returns a name to checksum map for all applied migrations.
func (l *Ledger) Checksums(ctx context.Context) (map[string]string, error) {
	records, err := l.All(ctx)
	if err != nil {
		return nil, err
	}

	checksums := make(map[string]string, len(records))
	for _, rec := range records {
		checksums[rec.Name] = rec.Checksum
	}
	return checksums, nil
}

func (l *Ledger) createTableSQL() string {
	switch l.provider {
	case "postgres":
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id SERIAL PRIMARY KEY,
				migration_name VARCHAR(255) NOT NULL UNIQUE,
				applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				checksum VARCHAR(64) NOT NULL,
				execution_time_ms BIGINT,
				source VARCHAR(64),
				description TEXT
			)
		`, l.table)
	case "mysql":
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id INT AUTO_INCREMENT PRIMARY KEY,
				migration_name VARCHAR(255) NOT NULL UNIQUE,
				applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				checksum VARCHAR(64) NOT NULL,
				execution_time_ms BIGINT,
				source VARCHAR(64),
				description TEXT
			)
		`, l.table)
	default:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				migration_name TEXT NOT NULL UNIQUE,
				applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				checksum TEXT NOT NULL,
				execution_time_ms INTEGER,
				source TEXT,
				description TEXT
			)
		`, l.table)
	}
}

func (l *Ledger) insertSQL() string {
	if l.provider == "postgres" {
		return fmt.Sprintf(`
			INSERT INTO %s (migration_name, applied_at, checksum, execution_time_ms, source, description)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, l.table)
	}
	return fmt.Sprintf(`
		INSERT INTO %s (migration_name, applied_at, checksum, execution_time_ms, source, description)
		VALUES (?, ?, ?, ?, ?, ?)
	`, l.table)
}

func (l *Ledger) deleteSQL() string {
	if l.provider == "postgres" {
		return fmt.Sprintf("DELETE FROM %s WHERE migration_name = $1", l.table)
	}
	return fmt.Sprintf("DELETE FROM %s WHERE migration_name = ?", l.table)
}

func (l *Ledger) selectAllSQL() string {
	return fmt.Sprintf(`
		SELECT migration_name, applied_at, checksum, execution_time_ms, source, description
		FROM %s
		ORDER BY migration_name ASC
	`, l.table)
}

func (l *Ledger) selectNamesSQL() string {
	return fmt.Sprintf("SELECT migration_name FROM %s ORDER BY migration_name ASC", l.table)
}
