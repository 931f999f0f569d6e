package storage

import (
	"fmt"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestConnParamsDSN(t *testing.T) {
	p := ConnParams{Host: "db.internal", Port: 3307, User: "wiser", Password: "s3cret", Database: "wiser_main"}
	dsn := p.DSN()

	if !strings.HasPrefix(dsn, "wiser:s3cret@tcp(db.internal:3307)/wiser_main?") {
		t.Fatalf("dsn = %s", dsn)
	}
	for _, param := range []string{"parseTime=true", "multiStatements=true", "charset=utf8mb4", "timeout=30s"} {
		if !strings.Contains(dsn, param) {
			t.Errorf("dsn misses %s: %s", param, dsn)
		}
	}
}

func TestConnParamsDSNDefaults(t *testing.T) {
	p := ConnParams{Host: "localhost", User: "root", Database: "wiser"}
	dsn := p.DSN()
	if !strings.Contains(dsn, "tcp(localhost:3306)") {
		t.Fatalf("default port not applied: %s", dsn)
	}
}

func TestConnParamsDSNTimeoutOverride(t *testing.T) {
	t.Setenv("WISER_DB_TIMEOUT", "5s")
	dsn := ConnParams{Host: "h", User: "u", Database: "d"}.DSN()
	if !strings.Contains(dsn, "timeout=5s") {
		t.Fatalf("env timeout ignored: %s", dsn)
	}
}

func TestConnParamsForDatabase(t *testing.T) {
	p := ConnParams{Host: "h", User: "u", Password: "pw", Database: "wiser_main"}
	b := p.ForDatabase("wiser_branch_7")
	if b.Database != "wiser_branch_7" {
		t.Fatalf("database = %q", b.Database)
	}
	if b.Host != p.Host || b.User != p.User || b.Password != p.Password {
		t.Fatalf("credentials not shared: %+v", b)
	}
	if p.Database != "wiser_main" {
		t.Fatalf("original mutated: %+v", p)
	}
}

func TestQuoteIdentifier(t *testing.T) {
	if got := QuoteIdentifier("orders"); got != "`orders`" {
		t.Fatalf("got %s", got)
	}
	if got := QuoteIdentifier("weird`name"); got != "`weird``name`" {
		t.Fatalf("backtick not escaped: %s", got)
	}
}

func TestErrorClassification(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	if !IsDuplicateKey(dup) {
		t.Fatalf("1062 not classified as duplicate key")
	}
	if !IsDuplicateKey(fmt.Errorf("insert: %w", dup)) {
		t.Fatalf("wrapped 1062 not classified")
	}
	if !IsDuplicateKey(ErrDuplicateKey) {
		t.Fatalf("sentinel not classified")
	}
	if IsDuplicateKey(fmt.Errorf("some other error")) {
		t.Fatalf("generic error classified as duplicate key")
	}

	if !IsWrongValueCount(&mysql.MySQLError{Number: 1136}) || !IsWrongValueCount(ErrWrongValueCount) {
		t.Fatalf("wrong value count not classified")
	}
	if !IsTableMissing(&mysql.MySQLError{Number: 1146}) || !IsTableMissing(ErrTableMissing) {
		t.Fatalf("missing table not classified")
	}
	if !IsRetryableLockError(&mysql.MySQLError{Number: 1213}) || !IsRetryableLockError(&mysql.MySQLError{Number: 1205}) {
		t.Fatalf("lock errors not retryable")
	}
	if IsRetryableLockError(&mysql.MySQLError{Number: 1062}) {
		t.Fatalf("duplicate key marked retryable")
	}
}
