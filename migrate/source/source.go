// Package source discovers migrations on disk. A migration is a directory
// named <version>_<name> containing a migration.sql file and an optional
// down.sql rollback file.
package source

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const (
	// UpFile is the forward migration SQL file inside a migration directory.
	UpFile = "migration.sql"
	// DownFile is the optional rollback SQL file.
	DownFile = "down.sql"
)

// namePattern matches migration directory names: a numeric version prefix
// (sequence number or timestamp) followed by a snake_case name.
var namePattern = regexp.MustCompile(`^(\d{3,14})_[a-z][a-z0-9_]*$`)

// Migration is a single migration loaded from disk.
type Migration struct {
	Name        string
	Dir         string
	UpSQL       string
	DownSQL     string
	Checksum    string
	Description string
}

// HasDown reports whether the migration has a rollback file.
func (m Migration) HasDown() bool {
	return strings.TrimSpace(m.DownSQL) != ""
}

// Discover lists migrations under dir, sorted lexicographically by name.
// Directories with invalid names are ignored; Validate reports them.
func Discover(fsys afero.Fs, dir string) ([]Migration, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory %s: %w", dir, err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if !entry.IsDir() || !namePattern.MatchString(entry.Name()) {
			continue
		}

		m, err := load(fsys, dir, entry.Name())
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Name < migrations[j].Name
	})

	return migrations, nil
}

func load(fsys afero.Fs, dir, name string) (Migration, error) {
	migrationDir := filepath.Join(dir, name)

	upSQL, err := afero.ReadFile(fsys, filepath.Join(migrationDir, UpFile))
	if err != nil {
		return Migration{}, fmt.Errorf("migration %s has no %s: %w", name, UpFile, err)
	}

	m := Migration{
		Name:        name,
		Dir:         migrationDir,
		UpSQL:       string(upSQL),
		Checksum:    CalculateChecksum(string(upSQL)),
		Description: parseDescription(string(upSQL)),
	}

	downSQL, err := afero.ReadFile(fsys, filepath.Join(migrationDir, DownFile))
	if err == nil {
		m.DownSQL = string(downSQL)
	}

	return m, nil
}

// Get returns a single migration by name.
func Get(fsys afero.Fs, dir, name string) (Migration, error) {
	if !namePattern.MatchString(name) {
		return Migration{}, fmt.Errorf("invalid migration name %q", name)
	}
	if ok, _ := afero.DirExists(fsys, filepath.Join(dir, name)); !ok {
		return Migration{}, fmt.Errorf("migration %s not found in %s", name, dir)
	}
	return load(fsys, dir, name)
}

// CalculateChecksum returns the SHA-256 hex digest of migration SQL.
func CalculateChecksum(migrationSQL string) string {
	hash := sha256.Sum256([]byte(migrationSQL))
	return hex.EncodeToString(hash[:])
}

// parseDescription extracts a leading "-- description:" comment, if present.
func parseDescription(sql string) string {
	for _, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "--") {
			return ""
		}
		comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "--"))
		if rest, ok := strings.CutPrefix(comment, "description:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// Scaffold creates a new migration directory with template SQL files and
// returns the migration name.
func Scaffold(fsys afero.Fs, dir, name string, now time.Time) (string, error) {
	if !regexp.MustCompile(`^[a-z][a-z0-9_]*$`).MatchString(name) {
		return "", fmt.Errorf("migration name %q must be snake_case (letters, digits, underscores)", name)
	}

	migrationName := fmt.Sprintf("%s_%s", now.UTC().Format("20060102150405"), name)
	migrationDir := filepath.Join(dir, migrationName)

	if ok, _ := afero.DirExists(fsys, migrationDir); ok {
		return "", fmt.Errorf("migration %s already exists", migrationName)
	}
	if err := fsys.MkdirAll(migrationDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create migration directory: %w", err)
	}

	upTemplate := fmt.Sprintf("-- description: %s\n\n-- Write forward migration SQL here.\n", strings.ReplaceAll(name, "_", " "))
	if err := afero.WriteFile(fsys, filepath.Join(migrationDir, UpFile), []byte(upTemplate), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", UpFile, err)
	}

	downTemplate := "-- Write rollback SQL here.\n"
	if err := afero.WriteFile(fsys, filepath.Join(migrationDir, DownFile), []byte(downTemplate), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", DownFile, err)
	}

	return migrationName, nil
}
