package migrate

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailyhq/maily-migrate/migrate/source"
)

func newTestEngine(t *testing.T) (*Engine, afero.Fs, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("migrations", 0o755))
	require.NoError(t, fsys.MkdirAll("seeds", 0o755))

	engine, err := NewEngine(Options{
		DB:            db,
		Provider:      "sqlite",
		Fs:            fsys,
		Dir:           "migrations",
		SeedsDir:      "seeds",
		Logger:        zerolog.Nop(),
		Environment:   "test",
		DatabaseLabel: "sqlite://:memory:",
	})
	require.NoError(t, err)

	return engine, fsys, db
}

func addMigration(t *testing.T, fsys afero.Fs, name, upSQL, downSQL string) {
	t.Helper()
	dir := "migrations/" + name
	require.NoError(t, fsys.MkdirAll(dir, 0o755))
	require.NoError(t, afero.WriteFile(fsys, dir+"/"+source.UpFile, []byte(upSQL), 0o644))
	if downSQL != "" {
		require.NoError(t, afero.WriteFile(fsys, dir+"/"+source.DownFile, []byte(downSQL), 0o644))
	}
}

func TestDeployAppliesPendingInOrder(t *testing.T) {
	engine, fsys, db := newTestEngine(t)
	ctx := context.Background()

	addMigration(t, fsys, "002_campaigns", "CREATE TABLE campaigns (id INTEGER PRIMARY KEY);", "DROP TABLE campaigns;")
	addMigration(t, fsys, "001_subscribers", "CREATE TABLE subscribers (id INTEGER PRIMARY KEY);", "DROP TABLE subscribers;")

	applied, err := engine.Deploy(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_subscribers", "002_campaigns"}, applied)

	_, err = db.Exec("INSERT INTO campaigns (id) VALUES (1)")
	require.NoError(t, err)

	// Second deploy is a no-op.
	applied, err = engine.Deploy(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestDeployStopsAtFirstFailure(t *testing.T) {
	engine, fsys, _ := newTestEngine(t)
	ctx := context.Background()

	addMigration(t, fsys, "001_ok", "CREATE TABLE a (id INTEGER);", "")
	addMigration(t, fsys, "002_broken", "CREATE TABLE;", "")
	addMigration(t, fsys, "003_never", "CREATE TABLE c (id INTEGER);", "")

	applied, err := engine.Deploy(ctx)
	require.Error(t, err)
	assert.Equal(t, []string{"001_ok"}, applied)

	status, err := engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"002_broken", "003_never"}, status.Pending)
}

func TestStatusDetectsDrift(t *testing.T) {
	engine, fsys, _ := newTestEngine(t)
	ctx := context.Background()

	addMigration(t, fsys, "001_init", "CREATE TABLE a (id INTEGER);", "DROP TABLE a;")
	_, err := engine.Deploy(ctx)
	require.NoError(t, err)

	// Edit the file after it was applied.
	require.NoError(t, afero.WriteFile(fsys, "migrations/001_init/"+source.UpFile,
		[]byte("CREATE TABLE a (id INTEGER, name TEXT);"), 0o644))

	status, err := engine.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status.Drifted, 1)
	assert.Equal(t, "001_init", status.Drifted[0].Name)
	assert.False(t, status.Clean())
}

func TestStatusDetectsOrphans(t *testing.T) {
	engine, fsys, _ := newTestEngine(t)
	ctx := context.Background()

	addMigration(t, fsys, "001_init", "CREATE TABLE a (id INTEGER);", "DROP TABLE a;")
	_, err := engine.Deploy(ctx)
	require.NoError(t, err)

	require.NoError(t, fsys.RemoveAll("migrations/001_init"))

	status, err := engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init"}, status.Orphaned)
}

func TestRollbackLatest(t *testing.T) {
	engine, fsys, _ := newTestEngine(t)
	ctx := context.Background()

	addMigration(t, fsys, "001_a", "CREATE TABLE a (id INTEGER);", "DROP TABLE a;")
	addMigration(t, fsys, "002_b", "CREATE TABLE b (id INTEGER);", "DROP TABLE b;")
	_, err := engine.Deploy(ctx)
	require.NoError(t, err)

	name, err := engine.Rollback(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "002_b", name)

	status, err := engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"002_b"}, status.Pending)
	require.Len(t, status.Applied, 1)
	assert.Equal(t, "001_a", status.Applied[0].Name)
}

func TestRollbackNamed(t *testing.T) {
	engine, fsys, _ := newTestEngine(t)
	ctx := context.Background()

	addMigration(t, fsys, "001_a", "CREATE TABLE a (id INTEGER);", "DROP TABLE a;")
	_, err := engine.Deploy(ctx)
	require.NoError(t, err)

	_, err = engine.Rollback(ctx, "002_missing")
	assert.Error(t, err)

	name, err := engine.Rollback(ctx, "001_a")
	require.NoError(t, err)
	assert.Equal(t, "001_a", name)

	_, err = engine.Rollback(ctx, "")
	assert.Error(t, err)
}

func TestRollbackOrphaned(t *testing.T) {
	engine, fsys, _ := newTestEngine(t)
	ctx := context.Background()

	addMigration(t, fsys, "001_init", "CREATE TABLE a (id INTEGER);", "DROP TABLE a;")
	_, err := engine.Deploy(ctx)
	require.NoError(t, err)

	// The directory disappears after apply, so down.sql is gone too.
	require.NoError(t, fsys.RemoveAll("migrations/001_init"))

	_, err = engine.Rollback(ctx, "001_init")
	require.ErrorIs(t, err, ErrOrphaned)

	require.NoError(t, engine.DropOrphan(ctx, "001_init"))

	status, err := engine.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, status.Applied)
	assert.Empty(t, status.Orphaned)

	// The row is gone now, so a second drop fails.
	assert.Error(t, engine.DropOrphan(ctx, "001_init"))
}

func TestDropOrphanRefusesLiveMigration(t *testing.T) {
	engine, fsys, _ := newTestEngine(t)
	ctx := context.Background()

	addMigration(t, fsys, "001_init", "CREATE TABLE a (id INTEGER);", "DROP TABLE a;")
	_, err := engine.Deploy(ctx)
	require.NoError(t, err)

	err = engine.DropOrphan(ctx, "001_init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exists on disk")

	status, err := engine.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status.Applied, 1)
}

func TestRollbackAndResetCheckServerVersion(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("migrations", 0o755))

	// A postgres engine pointed at a server that cannot answer the version
	// query must fail before running any DDL.
	engine, err := NewEngine(Options{
		DB:       db,
		Provider: "postgres",
		Fs:       fsys,
		Dir:      "migrations",
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	ctx := context.Background()

	_, err = engine.Rollback(ctx, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server version")

	_, _, err = engine.Reset(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server version")
}

func TestReset(t *testing.T) {
	engine, fsys, db := newTestEngine(t)
	ctx := context.Background()

	addMigration(t, fsys, "001_a", "CREATE TABLE a (id INTEGER);", "DROP TABLE a;")
	addMigration(t, fsys, "002_b", "CREATE TABLE b (id INTEGER);", "DROP TABLE b;")
	_, err := engine.Deploy(ctx)
	require.NoError(t, err)

	rolledBack, applied, err := engine.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rolledBack)
	assert.Equal(t, 2, applied)

	_, err = db.Exec("INSERT INTO b (id) VALUES (1)")
	require.NoError(t, err)
}

func TestValidateIncludesDrift(t *testing.T) {
	engine, fsys, _ := newTestEngine(t)
	ctx := context.Background()

	addMigration(t, fsys, "001_init", "CREATE TABLE a (id INTEGER);", "DROP TABLE a;")
	_, err := engine.Deploy(ctx)
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fsys, "migrations/001_init/"+source.UpFile,
		[]byte("CREATE TABLE a (id INTEGER, extra TEXT);"), 0o644))

	findings, err := engine.Validate(ctx)
	require.NoError(t, err)

	found := false
	for _, f := range findings {
		if f.Migration == "001_init" && f.Severity == source.SeverityError {
			found = true
			assert.Contains(t, f.Message, "drift")
		}
	}
	assert.True(t, found)
}

func TestSeed(t *testing.T) {
	engine, fsys, db := newTestEngine(t)
	ctx := context.Background()

	addMigration(t, fsys, "001_init", "CREATE TABLE plans (id INTEGER PRIMARY KEY, name TEXT);", "")
	_, err := engine.Deploy(ctx)
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fsys, "seeds/001_plans.sql",
		[]byte("INSERT INTO plans (name) VALUES ('free'), ('pro');"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "seeds/readme.txt", []byte("not sql"), 0o644))

	ran, err := engine.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_plans.sql"}, ran)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM plans").Scan(&count))
	assert.Equal(t, 2, count)
}
