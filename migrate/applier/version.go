package applier

import (
	"context"
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Minimum server versions the tool has been validated against.
var minServerVersions = map[string]string{
	"postgres": "12.0",
	"mysql":    "5.7",
}

// CheckServerVersion verifies the database server is a supported version
// before any DDL runs. SQLite is always accepted.
func (a *Applier) CheckServerVersion(ctx context.Context) error {
	minRaw, ok := minServerVersions[a.provider]
	if !ok {
		return nil
	}

	var raw string
	switch a.provider {
	case "postgres":
		if err := a.db.QueryRowContext(ctx, "SHOW server_version").Scan(&raw); err != nil {
			return fmt.Errorf("failed to query server version: %w", err)
		}
	case "mysql":
		if err := a.db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&raw); err != nil {
			return fmt.Errorf("failed to query server version: %w", err)
		}
	}

	current, err := parseServerVersion(raw)
	if err != nil {
		a.logger.Warn().Str("version", raw).Msg("could not parse server version, skipping check")
		return nil
	}

	min := goversion.Must(goversion.NewVersion(minRaw))
	if current.LessThan(min) {
		return fmt.Errorf("%s server version %s is below the minimum supported %s", a.provider, raw, minRaw)
	}

	a.logger.Debug().Str("server_version", current.String()).Msg("server version check passed")
	return nil
}

// parseServerVersion extracts the numeric version from server version
// strings like "15.4 (Debian 15.4-1)" or "8.0.34-0ubuntu0.22.04.1".
func parseServerVersion(raw string) (*goversion.Version, error) {
	v := strings.TrimSpace(raw)
	if i := strings.IndexByte(v, ' '); i >= 0 {
		v = v[:i]
	}
	if i := strings.IndexByte(v, '-'); i >= 0 {
		v = v[:i]
	}
	return goversion.NewVersion(v)
}
