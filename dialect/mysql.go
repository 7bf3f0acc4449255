package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/GoCodeAlone/sqlschema/schema"
)

// MySQL is the MySQL/MariaDB dialect.
type MySQL struct{}

var mysqlTypes = map[schema.TypeCode]string{
	schema.TypeInt:        "INT",
	schema.TypeTinyInt:    "TINYINT",
	schema.TypeSmallInt:   "SMALLINT",
	schema.TypeBigInt:     "BIGINT",
	schema.TypeFloat:      "DOUBLE",
	schema.TypeDecimal:    "DECIMAL(10,2)",
	schema.TypeChar:       "VARCHAR",
	schema.TypeMediumText: "MEDIUMTEXT",
	schema.TypeText:       "LONGTEXT",
	schema.TypeMediumBlob: "MEDIUMBLOB",
	schema.TypeBlob:       "LONGBLOB",
	schema.TypeJSON:       "JSON",
	schema.TypeBinary:     "BINARY",
	schema.TypeDate:       "DATE",
	schema.TypeDateTime:   "DATETIME",
	schema.TypeEnum:       "ENUM",

	schema.TypeInt8:      "TINYINT",
	schema.TypeInt16:     "SMALLINT",
	schema.TypeInt32:     "INT",
	schema.TypeInt64:     "BIGINT",
	schema.TypeCharAlias: "VARCHAR",
	schema.TypeDouble:    "DOUBLE",
	schema.TypeTextAlias: "LONGTEXT",
	schema.TypeBlobAlias: "LONGBLOB",
	schema.TypeJSONAlias: "JSON",
	schema.TypeBool:      "TINYINT",
	schema.TypeBoolean:   "TINYINT",
}

// Integer types whose display width the server may report and we ignore.
var mysqlIntegerTypes = map[string]bool{
	"TINYINT": true, "SMALLINT": true, "MEDIUMINT": true, "INT": true, "INTEGER": true, "BIGINT": true,
}

func (MySQL) Name() string { return "mysql" }

func (MySQL) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

var mysqlLiteralEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"'", "\\'",
	"\"", "\\\"",
	"\x00", "\\0",
	"\n", "\\n",
	"\r", "\\r",
	"\x1a", "\\Z",
)

func (MySQL) QuoteLiteral(value string) string {
	return "'" + mysqlLiteralEscaper.Replace(value) + "'"
}

func (MySQL) ColumnType(col schema.ColumnSpec) string {
	typ := mysqlTypes[col.Type]
	if col.Type.Sized() {
		typ += "(" + col.Args + ")"
	}
	return typ
}

func (d MySQL) ColumnDefinition(col schema.ColumnSpec, autoIncrement bool) string {
	return definition(d.ColumnType(col), col.Unsigned, autoIncrement && col.AutoIncrement,
		col.NotNull, col.Default, d.QuoteLiteral)
}

func (MySQL) SupportsColumnPosition() bool { return true }

// IdentityRequiresPrimaryKey is true: MySQL rejects AUTO_INCREMENT on a
// column that is not part of a key.
func (MySQL) IdentityRequiresPrimaryKey() bool { return true }

func (MySQL) DropColumnRemovesIndexes() bool { return false }

func (d MySQL) CreateTable(table string, cols []schema.ColumnSpec, autoIncrement bool) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = d.QuoteIdent(c.Name) + " " + d.ColumnDefinition(c, autoIncrement)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.QuoteIdent(table), strings.Join(defs, ", "))
}

func (d MySQL) position(anchor string) string {
	if anchor == "" {
		return "FIRST"
	}
	return "AFTER " + d.QuoteIdent(anchor)
}

func (d MySQL) AddColumn(table string, col schema.ColumnSpec, anchor string, autoIncrement bool) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s %s",
		d.QuoteIdent(table), d.QuoteIdent(col.Name), d.ColumnDefinition(col, autoIncrement), d.position(anchor))}
}

func (d MySQL) ModifyColumn(table string, col schema.ColumnSpec, _ LiveColumn, anchor string, autoIncrement bool) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s %s %s",
		d.QuoteIdent(table), d.QuoteIdent(col.Name), d.ColumnDefinition(col, autoIncrement), d.position(anchor))}
}

func (d MySQL) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.QuoteIdent(table), d.QuoteIdent(column))
}

func (d MySQL) AddIndex(table string, idx schema.IndexSpec) string {
	cols := quoteList(idx.Columns, d.QuoteIdent)
	switch idx.Kind {
	case schema.IndexPrimary:
		return fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)", d.QuoteIdent(table), cols)
	case schema.IndexUnique:
		return fmt.Sprintf("ALTER TABLE %s ADD UNIQUE INDEX (%s)", d.QuoteIdent(table), cols)
	default:
		return fmt.Sprintf("ALTER TABLE %s ADD INDEX (%s)", d.QuoteIdent(table), cols)
	}
}

func (d MySQL) DropIndex(table string, idx LiveIndex) string {
	return fmt.Sprintf("ALTER TABLE %s DROP INDEX %s", d.QuoteIdent(table), d.QuoteIdent(idx.Name))
}

func (d MySQL) ReplacePrimaryKey(table string, _ LiveIndex, idx schema.IndexSpec) string {
	return fmt.Sprintf("ALTER TABLE %s DROP PRIMARY KEY, ADD PRIMARY KEY (%s)",
		d.QuoteIdent(table), quoteList(idx.Columns, d.QuoteIdent))
}

func (d MySQL) DropPrimaryKey(table string, _ LiveIndex) string {
	return fmt.Sprintf("ALTER TABLE %s DROP PRIMARY KEY", d.QuoteIdent(table))
}

func (d MySQL) ReadVersionSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		d.QuoteIdent("value"), d.QuoteIdent(schema.BookkeepingTable), d.QuoteIdent("name"))
}

func (d MySQL) UpsertVersionSQL() string {
	return fmt.Sprintf("REPLACE INTO %s (%s, %s) VALUES (?, ?)",
		d.QuoteIdent(schema.BookkeepingTable), d.QuoteIdent("name"), d.QuoteIdent("value"))
}

func (MySQL) ErrorCode(err error) string {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return strconv.Itoa(int(me.Number))
	}
	return ""
}

const mysqlColumnsQuery = `
SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_KEY, COLUMN_DEFAULT, EXTRA
  FROM information_schema.COLUMNS
 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
 ORDER BY ORDINAL_POSITION`

func (d MySQL) ReadColumns(ctx context.Context, q Querier, table string) ([]LiveColumn, error) {
	rows, err := q.QueryContext(ctx, mysqlColumnsQuery, table)
	if err != nil {
		return nil, &IntrospectionError{Table: table, Op: "read columns", Err: err}
	}
	defer rows.Close()

	var cols []LiveColumn
	for rows.Next() {
		var (
			name, colType, nullable, key, extra string
			def                                 sql.NullString
		)
		if err := rows.Scan(&name, &colType, &nullable, &key, &def, &extra); err != nil {
			return nil, &IntrospectionError{Table: table, Op: "scan column", Err: err}
		}
		c := LiveColumn{
			Name:       name,
			NotNull:    nullable == "NO",
			PrimaryKey: key == "PRI",
			Identity:   strings.Contains(strings.ToLower(extra), "auto_increment"),
		}
		c.Type, c.Unsigned = normalizeMySQLType(colType)
		if def.Valid {
			c.Default = mysqlDefault(def.String)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &IntrospectionError{Table: table, Op: "read columns", Err: err}
	}
	finishColumns(cols, d.QuoteLiteral)
	return cols, nil
}

const mysqlIndexesQuery = `
SELECT INDEX_NAME, NON_UNIQUE, COLUMN_NAME
  FROM information_schema.STATISTICS
 WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
 ORDER BY INDEX_NAME, SEQ_IN_INDEX`

func (MySQL) ReadIndexes(ctx context.Context, q Querier, table string) (map[string]LiveIndex, error) {
	rows, err := q.QueryContext(ctx, mysqlIndexesQuery, table)
	if err != nil {
		return nil, &IntrospectionError{Table: table, Op: "read indexes", Err: err}
	}
	defer rows.Close()

	indexes := make(map[string]LiveIndex)
	for rows.Next() {
		var (
			name, column string
			nonUnique    int
		)
		if err := rows.Scan(&name, &nonUnique, &column); err != nil {
			return nil, &IntrospectionError{Table: table, Op: "scan index", Err: err}
		}
		idx := indexes[name]
		idx.Name = name
		switch {
		case name == "PRIMARY":
			idx.Kind = schema.IndexPrimary
		case nonUnique == 0:
			idx.Kind = schema.IndexUnique
		default:
			idx.Kind = schema.IndexPlain
		}
		idx.Columns = append(idx.Columns, column)
		indexes[name] = idx
	}
	if err := rows.Err(); err != nil {
		return nil, &IntrospectionError{Table: table, Op: "read indexes", Err: err}
	}
	return indexes, nil
}

// normalizeMySQLType turns a server COLUMN_TYPE such as "int(11) unsigned" or
// "enum('a','b')" into the declared rendering: upper-cased base type, size
// suffix kept except integer display widths, and the unsigned flag split off.
func normalizeMySQLType(colType string) (string, bool) {
	colType = strings.TrimSpace(colType)
	base, args, rest := colType, "", ""
	if i := strings.IndexAny(colType, "( "); i >= 0 {
		base = colType[:i]
		rest = colType[i:]
		if rest[0] == '(' {
			if j := strings.LastIndex(rest, ")"); j > 0 {
				args = rest[1:j]
				rest = rest[j+1:]
			}
		}
	}
	base = strings.ToUpper(base)

	typ := base
	if args != "" && !mysqlIntegerTypes[base] {
		typ += "(" + args + ")"
	}
	unsigned := false
	for _, f := range strings.Fields(strings.ToLower(rest)) {
		if f == "unsigned" {
			unsigned = true
		}
	}
	return typ, unsigned
}

// mysqlDefault normalizes COLUMN_DEFAULT. MySQL reports the raw value while
// MariaDB reports a quoted literal and the string NULL for no default.
func mysqlDefault(raw string) *string {
	if v, rest, ok := unquoteLiteral(raw); ok && rest == "" {
		return &v
	}
	if raw == "NULL" {
		return nil
	}
	return &raw
}
