package storage

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers this module branches on. Only the ones with a
// specific, actionable translation are listed; everything else propagates as
// a generic failure of the current operation.
const (
	errDuplicateKey      = 1062 // ER_DUP_ENTRY
	errWrongValueCount   = 1136 // ER_WRONG_VALUE_COUNT_ON_ROW
	errNoSuchTable       = 1146 // ER_NO_SUCH_TABLE
	errLockDeadlock      = 1213 // ER_LOCK_DEADLOCK
	errLockWaitTimedOut  = 1205 // ER_LOCK_WAIT_TIMEOUT
)

// Sentinel equivalents of the MySQL error numbers, so non-MySQL store
// implementations (the in-memory one) can raise the same conditions.
var (
	ErrDuplicateKey    = errors.New("duplicate key")
	ErrWrongValueCount = errors.New("wrong value count on row")
	ErrTableMissing    = errors.New("table does not exist")
)

func mysqlErrNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// IsDuplicateKey reports whether err is a unique-key violation.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey) || mysqlErrNumber(err) == errDuplicateKey
}

// IsWrongValueCount reports whether err is a column-count mismatch. During a
// branch deployment this signals that the branch database's schema is behind
// the main database.
func IsWrongValueCount(err error) bool {
	return errors.Is(err, ErrWrongValueCount) || mysqlErrNumber(err) == errWrongValueCount
}

// IsTableMissing reports whether err means the referenced table does not
// exist. The legacy conversion job uses this to detect absent easy_* tables.
func IsTableMissing(err error) bool {
	return errors.Is(err, ErrTableMissing) || mysqlErrNumber(err) == errNoSuchTable
}

// IsRetryableLockError reports whether err is a deadlock or lock-wait
// timeout worth retrying.
func IsRetryableLockError(err error) bool {
	n := mysqlErrNumber(err)
	return n == errLockDeadlock || n == errLockWaitTimedOut
}
