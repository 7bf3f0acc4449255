package migration

import (
	"errors"
	"fmt"
)

// ErrMigrationVetoed is returned by a hook to abort a run without failing it.
// UpdateSchema rolls back and reports false with a nil error.
var ErrMigrationVetoed = errors.New("migration vetoed")

// ErrLockNotAcquired is returned when a distributed lock could not be taken.
var ErrLockNotAcquired = errors.New("migration lock not acquired")

// DDLError wraps a failed DDL statement with the table it targeted and the
// server error code, when the driver exposes one.
type DDLError struct {
	Table string
	SQL   string
	Code  string
	Err   error
}

func (e *DDLError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("table %s: %s [%s]: %v", e.Table, e.SQL, e.Code, e.Err)
	}
	return fmt.Sprintf("table %s: %s: %v", e.Table, e.SQL, e.Err)
}

func (e *DDLError) Unwrap() error { return e.Err }
