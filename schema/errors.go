package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrReservedTable is returned when a declaration names the bookkeeping table.
	ErrReservedTable = errors.New("table name is reserved for schema bookkeeping")
	// ErrDuplicateTable is returned when a table is declared twice.
	ErrDuplicateTable = errors.New("table declared more than once")
	// ErrInvalidTableName is returned for empty or non-identifier table names.
	ErrInvalidTableName = errors.New("invalid table name")
)

// ParseError reports a schema-language line that could not be parsed. Line
// holds the offending line verbatim.
type ParseError struct {
	Table  string
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("schema %s: %s: %q", e.Table, e.Reason, e.Line)
	}
	return fmt.Sprintf("schema: %s: %q", e.Reason, e.Line)
}

// ConfigError is a configuration-time rejection raised before any database
// access: an unsupported dialect or an unusable table name.
type ConfigError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
