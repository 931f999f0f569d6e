package storage

import (
	"fmt"
	"os"
	"time"
)

// ConnParams holds the pieces of a MySQL connection string.
type ConnParams struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// Timeout is the dial timeout. Zero means 30s; the
	// WISER_DB_TIMEOUT env var overrides it.
	Timeout time.Duration
}

// DSN builds a go-sql-driver DSN with the settings every store relies on.
//
// parseTime maps DATETIME columns to time.Time, multiStatements is required
// by the database-object synchronizer (routine bodies contain semicolons)
// and charset pins utf8mb4 so template sources round-trip untouched.
func (p ConnParams) DSN() string {
	timeout := p.Timeout
	if v := os.Getenv("WISER_DB_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			timeout = d
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	port := p.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true&charset=utf8mb4&timeout=%s",
		p.User, p.Password, p.Host, port, p.Database, timeout)
}

// ForDatabase returns a copy of p pointing at another schema on the same
// server. Branch databases live next to the main database and share
// credentials.
func (p ConnParams) ForDatabase(database string) ConnParams {
	out := p
	out.Database = database
	return out
}
