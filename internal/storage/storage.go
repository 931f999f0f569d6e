// Package storage provides the database gateway for the template module.
//
// The gateway is a thin seam over *sql.DB: every store in this repository
// depends on the Gateway interface rather than on a concrete connection so
// that tests can substitute fakes. Value inputs always travel as ?
// placeholders; schema and object names are trusted internal input and are
// interpolated with backtick quoting.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql" // register the mysql driver
)

// ErrNotFound is returned when a requested entity does not exist in the
// database.
var ErrNotFound = errors.New("not found")

// Gateway is the database access seam shared by all stores.
type Gateway interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)

	// Database returns the schema name the gateway is connected to.
	Database() string
}

// DB wraps an open MySQL connection as a Gateway.
type DB struct {
	*sql.DB
	database string
}

// Open connects to the MySQL database described by dsn and verifies the
// connection with a ping.
func Open(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &DB{DB: db, database: databaseFromDSN(dsn)}, nil
}

// Database returns the schema name parsed from the DSN.
func (d *DB) Database() string { return d.database }

// QuoteIdentifier backtick-quotes a schema, table or object name for direct
// interpolation. Only internal, trusted names go through here.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// databaseFromDSN extracts the schema name from a mysql DSN
// (user:pass@tcp(host:port)/dbname?params).
func databaseFromDSN(dsn string) string {
	slash := strings.LastIndex(dsn, "/")
	if slash < 0 {
		return ""
	}
	name := dsn[slash+1:]
	if q := strings.Index(name, "?"); q >= 0 {
		name = name[:q]
	}
	return name
}
