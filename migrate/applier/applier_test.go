package applier

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailyhq/maily-migrate/migrate/ledger"
	"github.com/mailyhq/maily-migrate/migrate/source"
)

func newTestApplier(t *testing.T) (*Applier, *ledger.Ledger, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	led, err := ledger.New(db, "sqlite", ledger.DefaultTable)
	require.NoError(t, err)
	require.NoError(t, led.EnsureTable(context.Background()))

	a := New(db, "sqlite", led, zerolog.Nop(), 0)
	return a, led, db
}

func TestApplyRecordsLedgerRow(t *testing.T) {
	a, led, db := newTestApplier(t)
	ctx := context.Background()

	m := source.Migration{
		Name:        "001_init",
		UpSQL:       "CREATE TABLE subscribers (id INTEGER PRIMARY KEY, email TEXT NOT NULL);",
		Checksum:    source.CalculateChecksum("CREATE TABLE subscribers (id INTEGER PRIMARY KEY, email TEXT NOT NULL);"),
		Description: "create subscribers",
	}
	require.NoError(t, a.Apply(ctx, m))

	// The table exists and is usable.
	_, err := db.Exec("INSERT INTO subscribers (email) VALUES ('ops@maily.io')")
	require.NoError(t, err)

	records, err := led.All(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "001_init", records[0].Name)
	assert.Equal(t, m.Checksum, records[0].Checksum)
	assert.Equal(t, "fs", records[0].Source)
	assert.Equal(t, "create subscribers", records[0].Description)
}

func TestApplyFailureLeavesNoLedgerRow(t *testing.T) {
	a, led, _ := newTestApplier(t)
	ctx := context.Background()

	m := source.Migration{
		Name:  "001_broken",
		UpSQL: "CREATE TABLE;",
	}
	err := a.Apply(ctx, m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_broken")

	names, err := led.AppliedNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRollback(t *testing.T) {
	a, led, db := newTestApplier(t)
	ctx := context.Background()

	m := source.Migration{
		Name:    "001_init",
		UpSQL:   "CREATE TABLE subscribers (id INTEGER PRIMARY KEY);",
		DownSQL: "DROP TABLE subscribers;",
	}
	require.NoError(t, a.Apply(ctx, m))
	require.NoError(t, a.Rollback(ctx, m))

	names, err := led.AppliedNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = db.Exec("INSERT INTO subscribers (id) VALUES (1)")
	assert.Error(t, err)
}

func TestRollbackWithoutDownFile(t *testing.T) {
	a, _, _ := newTestApplier(t)

	m := source.Migration{Name: "001_init", UpSQL: "CREATE TABLE t (id INTEGER);"}
	err := a.Rollback(context.Background(), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), source.DownFile)
}

func TestLockIsNoopOnSQLite(t *testing.T) {
	a, _, _ := newTestApplier(t)
	ctx := context.Background()

	require.NoError(t, a.Lock(ctx))
	a.Unlock(ctx)
}

func TestParseServerVersion(t *testing.T) {
	v, err := parseServerVersion("15.4 (Debian 15.4-1.pgdg120+1)")
	require.NoError(t, err)
	assert.Equal(t, "15.4.0", v.String())

	v, err = parseServerVersion("8.0.34-0ubuntu0.22.04.1")
	require.NoError(t, err)
	assert.Equal(t, "8.0.34", v.String())

	_, err = parseServerVersion("not a version")
	assert.Error(t, err)
}
