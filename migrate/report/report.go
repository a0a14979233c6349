// Package report builds migration status reports in terminal, markdown and
// JSON form.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Applied is a migration recorded in the ledger.
type Applied struct {
	Name            string    `json:"name"`
	AppliedAt       time.Time `json:"applied_at"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	Description     string    `json:"description,omitempty"`
}

// Drift is an applied migration whose on-disk SQL no longer matches the
// checksum recorded at apply time.
type Drift struct {
	Name           string `json:"name"`
	LedgerChecksum string `json:"ledger_checksum"`
	FileChecksum   string `json:"file_checksum"`
}

// Status is a point-in-time summary of the migration state.
type Status struct {
	Environment string    `json:"environment,omitempty"`
	Database    string    `json:"database"`
	GeneratedAt time.Time `json:"generated_at"`
	Applied     []Applied `json:"applied"`
	Pending     []string  `json:"pending"`
	Drifted     []Drift   `json:"drifted"`
	// Orphaned migrations have a ledger row but no directory on disk.
	Orphaned []string `json:"orphaned"`
}

// Clean reports whether there is nothing pending and no drift.
func (s *Status) Clean() bool {
	return len(s.Pending) == 0 && len(s.Drifted) == 0 && len(s.Orphaned) == 0
}

// JSON renders the status as indented JSON.
func (s *Status) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Markdown renders the status as a markdown report.
func (s *Status) Markdown() string {
	var b strings.Builder

	b.WriteString("# Migration Status\n\n")
	if s.Environment != "" {
		fmt.Fprintf(&b, "- **Environment:** %s\n", s.Environment)
	}
	fmt.Fprintf(&b, "- **Database:** %s\n", s.Database)
	fmt.Fprintf(&b, "- **Generated:** %s\n", s.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Applied:** %d, **Pending:** %d, **Drifted:** %d, **Orphaned:** %d\n\n",
		len(s.Applied), len(s.Pending), len(s.Drifted), len(s.Orphaned))

	if len(s.Applied) > 0 {
		b.WriteString("## Applied\n\n")
		b.WriteString("| Migration | Applied At | Duration |\n")
		b.WriteString("|-----------|------------|----------|\n")
		for _, a := range s.Applied {
			fmt.Fprintf(&b, "| %s | %s | %dms |\n", a.Name, a.AppliedAt.UTC().Format(time.RFC3339), a.ExecutionTimeMs)
		}
		b.WriteString("\n")
	}

	if len(s.Pending) > 0 {
		b.WriteString("## Pending\n\n")
		for _, name := range s.Pending {
			fmt.Fprintf(&b, "- %s\n", name)
		}
		b.WriteString("\n")
	}

	if len(s.Drifted) > 0 {
		b.WriteString("## Drifted\n\n")
		b.WriteString("The following migrations were edited after they were applied:\n\n")
		for _, d := range s.Drifted {
			fmt.Fprintf(&b, "- %s (ledger %s…, file %s…)\n", d.Name, shortChecksum(d.LedgerChecksum), shortChecksum(d.FileChecksum))
		}
		b.WriteString("\n")
	}

	if len(s.Orphaned) > 0 {
		b.WriteString("## Orphaned\n\n")
		b.WriteString("The following ledger rows have no migration directory on disk:\n\n")
		for _, name := range s.Orphaned {
			fmt.Fprintf(&b, "- %s\n", name)
		}
		b.WriteString("\n")
	}

	if s.Clean() {
		b.WriteString("Database schema is up to date.\n")
	}

	return b.String()
}

// WriteFile writes the report to path in the given format ("markdown" or
// "json").
func (s *Status) WriteFile(fsys afero.Fs, path, format string) error {
	var content []byte
	switch format {
	case "markdown", "md":
		content = []byte(s.Markdown())
	case "json":
		data, err := s.JSON()
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		content = data
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}

	if err := afero.WriteFile(fsys, path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

func shortChecksum(sum string) string {
	if len(sum) > 8 {
		return sum[:8]
	}
	return sum
}
