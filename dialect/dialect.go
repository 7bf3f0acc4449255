// Package dialect implements per-backend introspection, literal escaping and
// statement rendering for schema convergence.
package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/sqlschema/schema"
)

// AutoIncrementToken marks an auto-increment or identity column in a
// normalized column definition, for every dialect.
const AutoIncrementToken = "AUTO_INCREMENT"

// ErrUnsupportedDialect is wrapped by the ConfigError returned from Lookup.
var ErrUnsupportedDialect = errors.New("unsupported dialect")

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// LiveColumn is a column as currently present in the database.
type LiveColumn struct {
	Name        string
	Type        string // normalized type including size suffix
	Unsigned    bool
	Identity    bool
	NotNull     bool
	Default     *string // unescaped literal
	PrimaryKey  bool
	Predecessor string // previous column, "" when first
	Definition  string // normalized definition, comparable with ColumnDefinition
}

// LiveIndex is an index as currently present in the database.
type LiveIndex struct {
	Name    string
	Kind    schema.IndexKind
	Columns []string
}

// Spec returns the kind and column list of the index.
func (i LiveIndex) Spec() schema.IndexSpec {
	return schema.IndexSpec{Kind: i.Kind, Columns: i.Columns}
}

// Introspector reads live table structure. An absent table yields empty
// results, not an error.
type Introspector interface {
	ReadColumns(ctx context.Context, q Querier, table string) ([]LiveColumn, error)
	ReadIndexes(ctx context.Context, q Querier, table string) (map[string]LiveIndex, error)
}

// Dialect is the capability set the migration engine needs from a backend.
//
// Column anchors name the column a created or modified column must follow;
// "" places it first. Dialects without column positioning ignore anchors.
type Dialect interface {
	Introspector

	Name() string
	QuoteIdent(name string) string
	QuoteLiteral(value string) string

	// ColumnType renders the native type of a declared column, size included.
	ColumnType(col schema.ColumnSpec) string
	// ColumnDefinition renders the normalized definition of a declared
	// column; autoIncrement false omits the auto-increment token.
	ColumnDefinition(col schema.ColumnSpec, autoIncrement bool) string

	SupportsColumnPosition() bool
	IdentityRequiresPrimaryKey() bool
	// DropColumnRemovesIndexes reports whether dropping a column removes every
	// index that includes it. When false the column is taken out of its
	// indexes and only indexes left without columns disappear.
	DropColumnRemovesIndexes() bool

	CreateTable(table string, cols []schema.ColumnSpec, autoIncrement bool) string
	AddColumn(table string, col schema.ColumnSpec, anchor string, autoIncrement bool) []string
	ModifyColumn(table string, col schema.ColumnSpec, live LiveColumn, anchor string, autoIncrement bool) []string
	DropColumn(table, column string) string
	AddIndex(table string, idx schema.IndexSpec) string
	DropIndex(table string, idx LiveIndex) string
	ReplacePrimaryKey(table string, old LiveIndex, idx schema.IndexSpec) string
	DropPrimaryKey(table string, old LiveIndex) string

	// ReadVersionSQL selects the value column for one bookkeeping key.
	ReadVersionSQL() string
	// UpsertVersionSQL writes (name, value) into the bookkeeping table.
	UpsertVersionSQL() string

	// ErrorCode extracts the server error code from a driver error, or "".
	ErrorCode(err error) string
}

// Lookup returns the dialect registered under name.
func Lookup(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "mysql", "mariadb":
		return MySQL{}, nil
	case "postgres", "postgresql", "pgsql", "pgx":
		return Postgres{}, nil
	}
	return nil, &schema.ConfigError{Field: "dialect", Value: name, Err: ErrUnsupportedDialect}
}

// IntrospectionError reports a catalog read that failed for a reason other
// than the table being absent.
type IntrospectionError struct {
	Table string
	Op    string
	Err   error
}

func (e *IntrospectionError) Error() string {
	return fmt.Sprintf("introspect %s: %s: %v", e.Table, e.Op, e.Err)
}

func (e *IntrospectionError) Unwrap() error { return e.Err }

// definition renders the normalized column definition shared by declared and
// live columns:
//
//	TYPE [UNSIGNED] [AUTO_INCREMENT] [NOT NULL] [DEFAULT 'literal']
func definition(typ string, unsigned, autoIncrement, notNull bool, def *string, quote func(string) string) string {
	var b strings.Builder
	b.WriteString(typ)
	if unsigned {
		b.WriteString(" UNSIGNED")
	}
	if autoIncrement {
		b.WriteString(" " + AutoIncrementToken)
	}
	if notNull {
		b.WriteString(" NOT NULL")
	}
	if def != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(quote(*def))
	}
	return b.String()
}

// finishColumns fills Predecessor and Definition for columns in ordinal order.
func finishColumns(cols []LiveColumn, quote func(string) string) {
	prev := ""
	for i := range cols {
		c := &cols[i]
		c.Predecessor = prev
		c.Definition = definition(c.Type, c.Unsigned, c.Identity, c.NotNull, c.Default, quote)
		prev = c.Name
	}
}

func quoteList(cols []string, quote func(string) string) string {
	q := make([]string, len(cols))
	for i, c := range cols {
		q[i] = quote(c)
	}
	return strings.Join(q, ", ")
}

// unquoteLiteral strips one level of single quotes, undoubling embedded
// quotes. ok is false when s is not a quoted literal.
func unquoteLiteral(s string) (v string, rest string, ok bool) {
	if !strings.HasPrefix(s, "'") {
		return "", s, false
	}
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] != '\'' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '\'' {
			b.WriteByte('\'')
			i++
			continue
		}
		return b.String(), s[i+1:], true
	}
	return "", s, false
}
