package datastore

import (
	"time"

	gosqlmysql "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/platewatch/internal/errors"
)

// mysqlDuplicateEntry is the MySQL server error number for a unique key
// violation.
const mysqlDuplicateEntry = 1062

// Sentinel errors returned by the store. Callers match them with errors.Is.
var (
	ErrIdentityNotFound       = errors.NewStd("identity not found")
	ErrBlacklistEntryNotFound = errors.NewStd("blacklist entry not found")
	ErrEmptyText              = errors.NewStd("plate text is empty")
	ErrUnsupportedFormat      = errors.NewStd("unsupported import format")
	ErrNotInitialized         = errors.NewStd("database connection is not initialized")
)

// isDuplicateKey reports whether err is a unique key violation.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *gosqlmysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}

// dbError wraps a database failure with component and timing context.
// Unique key violations are reported as conflicts.
func dbError(err error, operation string, started time.Time) error {
	category := errors.CategoryDatabase
	if isDuplicateKey(err) {
		category = errors.CategoryConflict
	}
	return errors.New(err).
		Component("datastore").
		Category(category).
		Timing(operation, time.Since(started)).
		Build()
}

// notFoundError wraps a sentinel with the lookup key.
func notFoundError(sentinel error, key string) error {
	return errors.New(sentinel).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("key", key).
		Build()
}
