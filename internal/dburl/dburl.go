// Package dburl resolves a DATABASE_URL into driver-ready connection info.
package dburl

import (
	"fmt"
	"net/url"
	"strings"
)

// Info holds the parsed pieces of a database URL.
type Info struct {
	Provider string // postgres, mysql, sqlite
	Driver   string // driver name for sql.Open
	DSN      string // data source name for sql.Open
	Host     string
	Port     string
	User     string
	Database string
	Schema   string // postgres schema, default "public"

	password string
}

// Parse parses a database URL into connection info. Supported schemes are
// postgres://, postgresql://, mysql:// and sqlite:// (or a bare file: path).
func Parse(raw string) (*Info, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("database URL is empty")
	}

	// Bare file paths are treated as SQLite databases.
	if strings.HasPrefix(raw, "file:") {
		return &Info{
			Provider: "sqlite",
			Driver:   "sqlite3",
			DSN:      raw,
			Database: strings.TrimPrefix(raw, "file:"),
		}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}

	info := &Info{
		Host:     u.Hostname(),
		Port:     u.Port(),
		Database: strings.TrimPrefix(u.Path, "/"),
		Schema:   "public",
	}
	if u.User != nil {
		info.User = u.User.Username()
		info.password, _ = u.User.Password()
	}
	if schema := u.Query().Get("schema"); schema != "" {
		info.Schema = schema
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		info.Provider = "postgres"
		info.Driver = "postgres"
		// lib/pq accepts the URL form directly, but the schema query
		// parameter is a Prisma convention it does not understand.
		q := u.Query()
		q.Del("schema")
		pgURL := *u
		pgURL.Scheme = "postgres"
		pgURL.RawQuery = q.Encode()
		info.DSN = pgURL.String()
	case "mysql":
		info.Provider = "mysql"
		info.Driver = "mysql"
		info.DSN = mysqlDSN(u, info)
	case "sqlite", "sqlite3":
		info.Provider = "sqlite"
		info.Driver = "sqlite3"
		path := u.Opaque
		if path == "" {
			path = u.Host + u.Path
		}
		info.DSN = path
		info.Database = path
	default:
		return nil, fmt.Errorf("unsupported database scheme %q", u.Scheme)
	}

	if info.Provider != "sqlite" && info.Database == "" {
		return nil, fmt.Errorf("database URL %s has no database name", info.Redacted())
	}

	return info, nil
}

// mysqlDSN converts a mysql:// URL into the DSN format the go-sql-driver
// expects. Multi-statement support is required for migration files that
// contain more than one statement.
func mysqlDSN(u *url.URL, info *Info) string {
	var b strings.Builder
	if info.User != "" {
		b.WriteString(info.User)
		if info.password != "" {
			b.WriteString(":")
			b.WriteString(info.password)
		}
		b.WriteString("@")
	}
	host := u.Host
	if host != "" {
		fmt.Fprintf(&b, "tcp(%s)", host)
	}
	b.WriteString("/")
	b.WriteString(info.Database)

	params := url.Values{}
	params.Set("multiStatements", "true")
	params.Set("parseTime", "true")
	for key, vals := range u.Query() {
		if key == "schema" || len(vals) == 0 {
			continue
		}
		params.Set(key, vals[0])
	}
	b.WriteString("?")
	b.WriteString(params.Encode())
	return b.String()
}

// Redacted returns a display string with the password masked.
func (i *Info) Redacted() string {
	switch i.Provider {
	case "sqlite":
		return fmt.Sprintf("sqlite://%s", i.Database)
	default:
		user := i.User
		if i.password != "" {
			user += ":****"
		}
		if user != "" {
			user += "@"
		}
		host := i.Host
		if i.Port != "" {
			host += ":" + i.Port
		}
		return fmt.Sprintf("%s://%s%s/%s", i.Provider, user, host, i.Database)
	}
}
