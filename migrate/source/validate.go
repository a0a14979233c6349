package source

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Severity classifies a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is a problem detected in the migrations directory.
type Finding struct {
	Migration string
	Severity  Severity
	Message   string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s: %s", f.Severity, f.Migration, f.Message)
}

// Validate checks the migrations directory for structural problems: invalid
// directory names, missing or empty migration.sql, missing down.sql, and
// duplicate version prefixes.
func Validate(fsys afero.Fs, dir string) ([]Finding, error) {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory %s: %w", dir, err)
	}

	var findings []Finding
	versions := make(map[string]string)

	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() {
			if name != ".gitkeep" && name != "README.md" {
				findings = append(findings, Finding{
					Migration: name,
					Severity:  SeverityWarning,
					Message:   "stray file in migrations directory",
				})
			}
			continue
		}

		match := namePattern.FindStringSubmatch(name)
		if match == nil {
			findings = append(findings, Finding{
				Migration: name,
				Severity:  SeverityError,
				Message:   "directory name must be <version>_<snake_case_name>",
			})
			continue
		}

		version := match[1]
		if prev, ok := versions[version]; ok {
			findings = append(findings, Finding{
				Migration: name,
				Severity:  SeverityError,
				Message:   fmt.Sprintf("version prefix %s already used by %s", version, prev),
			})
		} else {
			versions[version] = name
		}

		upSQL, err := afero.ReadFile(fsys, filepath.Join(dir, name, UpFile))
		if err != nil {
			findings = append(findings, Finding{
				Migration: name,
				Severity:  SeverityError,
				Message:   fmt.Sprintf("missing %s", UpFile),
			})
			continue
		}
		if isEffectivelyEmpty(string(upSQL)) {
			findings = append(findings, Finding{
				Migration: name,
				Severity:  SeverityError,
				Message:   fmt.Sprintf("%s contains no SQL statements", UpFile),
			})
		}

		if ok, _ := afero.Exists(fsys, filepath.Join(dir, name, DownFile)); !ok {
			findings = append(findings, Finding{
				Migration: name,
				Severity:  SeverityWarning,
				Message:   fmt.Sprintf("no %s, migration cannot be rolled back", DownFile),
			})
		}
	}

	return findings, nil
}

// isEffectivelyEmpty reports whether SQL contains only whitespace and comments.
func isEffectivelyEmpty(sql string) bool {
	for _, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		return false
	}
	return true
}
