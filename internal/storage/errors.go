package storage

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is a unique or other integrity constraint violation.
	ErrDuplicate = errors.New("integrity constraint violation")
	// ErrTransient is a lock timeout, deadlock, busy database or dropped
	// connection: the same statement may succeed when retried.
	ErrTransient = errors.New("transient data access failure")
)

// MySQL server error numbers.
const (
	mysqlDupEntry          = 1062
	mysqlDupEntryWithKey   = 1586
	mysqlBadNull           = 1048
	mysqlNoReferencedRow   = 1452
	mysqlRowIsReferenced   = 1451
	mysqlLockWaitTimeout   = 1205
	mysqlLockDeadlock      = 1213
	mysqlQueryInterrupted  = 1317
	mysqlServerGoneAway    = 2006
	mysqlServerLostContact = 2013
)

// classify tags err with ErrNotFound, ErrDuplicate or ErrTransient when the
// driver error says so. Unrecognised errors are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT:
			return fmt.Errorf("%w: %w", ErrDuplicate, err)
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
		return err
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDupEntry, mysqlDupEntryWithKey, mysqlBadNull, mysqlNoReferencedRow, mysqlRowIsReferenced:
			return fmt.Errorf("%w: %w", ErrDuplicate, err)
		case mysqlLockWaitTimeout, mysqlLockDeadlock, mysqlQueryInterrupted, mysqlServerGoneAway, mysqlServerLostContact:
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
		return err
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}
