package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/GoCodeAlone/sqlschema/schema"
)

// Postgres is the PostgreSQL dialect. Column order cannot be changed in
// place, so anchors are ignored; identity columns stand in for
// auto-increment and do not need a primary key.
type Postgres struct{}

var postgresTypes = map[schema.TypeCode]string{
	schema.TypeInt:        "INTEGER",
	schema.TypeTinyInt:    "SMALLINT",
	schema.TypeSmallInt:   "SMALLINT",
	schema.TypeBigInt:     "BIGINT",
	schema.TypeFloat:      "DOUBLE PRECISION",
	schema.TypeDecimal:    "NUMERIC(10,2)",
	schema.TypeChar:       "CHARACTER VARYING",
	schema.TypeMediumText: "TEXT",
	schema.TypeText:       "TEXT",
	schema.TypeMediumBlob: "BYTEA",
	schema.TypeBlob:       "BYTEA",
	schema.TypeJSON:       "JSON",
	schema.TypeBinary:     "BYTEA",
	schema.TypeDate:       "DATE",
	schema.TypeDateTime:   "TIMESTAMP WITHOUT TIME ZONE",
	schema.TypeEnum:       "CHARACTER VARYING",

	schema.TypeInt8:      "SMALLINT",
	schema.TypeInt16:     "SMALLINT",
	schema.TypeInt32:     "INTEGER",
	schema.TypeInt64:     "BIGINT",
	schema.TypeCharAlias: "CHARACTER VARYING",
	schema.TypeDouble:    "DOUBLE PRECISION",
	schema.TypeTextAlias: "TEXT",
	schema.TypeBlobAlias: "BYTEA",
	schema.TypeJSONAlias: "JSON",
	schema.TypeBool:      "BOOLEAN",
	schema.TypeBoolean:   "BOOLEAN",
}

const postgresIdentity = "GENERATED ALWAYS AS IDENTITY"

func (Postgres) Name() string { return "postgres" }

func (Postgres) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (Postgres) QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func (Postgres) ColumnType(col schema.ColumnSpec) string {
	typ := postgresTypes[col.Type]
	switch col.Type {
	case schema.TypeChar, schema.TypeCharAlias:
		typ += "(" + col.Args + ")"
	case schema.TypeEnum:
		// Enums become varchar wide enough for the longest value.
		width := 1
		for _, v := range schema.EnumValues(col.Args) {
			if len(v) > width {
				width = len(v)
			}
		}
		typ += "(" + strconv.Itoa(width) + ")"
	}
	return typ
}

// ColumnDefinition never renders UNSIGNED; PostgreSQL has no unsigned types.
func (d Postgres) ColumnDefinition(col schema.ColumnSpec, autoIncrement bool) string {
	return definition(d.ColumnType(col), false, autoIncrement && col.AutoIncrement,
		col.NotNull, col.Default, d.QuoteLiteral)
}

func (Postgres) SupportsColumnPosition() bool     { return false }
func (Postgres) IdentityRequiresPrimaryKey() bool { return false }
func (Postgres) DropColumnRemovesIndexes() bool   { return true }

// ddl rewrites a normalized definition into PostgreSQL column syntax.
func (d Postgres) ddl(col schema.ColumnSpec, autoIncrement bool) string {
	def := d.ColumnDefinition(col, autoIncrement)
	if autoIncrement && col.AutoIncrement {
		def = strings.Replace(def, AutoIncrementToken, postgresIdentity, 1)
	}
	return def
}

func (d Postgres) CreateTable(table string, cols []schema.ColumnSpec, autoIncrement bool) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = d.QuoteIdent(c.Name) + " " + d.ddl(c, autoIncrement)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.QuoteIdent(table), strings.Join(defs, ", "))
}

func (d Postgres) AddColumn(table string, col schema.ColumnSpec, _ string, autoIncrement bool) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		d.QuoteIdent(table), d.QuoteIdent(col.Name), d.ddl(col, autoIncrement))}
}

// ModifyColumn issues one ALTER COLUMN statement per attribute that differs
// from the live column.
func (d Postgres) ModifyColumn(table string, col schema.ColumnSpec, live LiveColumn, _ string, autoIncrement bool) []string {
	prefix := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s ", d.QuoteIdent(table), d.QuoteIdent(col.Name))
	var stmts []string

	if typ := d.ColumnType(col); typ != live.Type {
		stmts = append(stmts, prefix+fmt.Sprintf("TYPE %s USING %s::%s", typ, d.QuoteIdent(col.Name), typ))
	}

	identity := autoIncrement && col.AutoIncrement
	switch {
	case col.NotNull && !live.NotNull:
		stmts = append(stmts, prefix+"SET NOT NULL")
	case !col.NotNull && live.NotNull && !live.PrimaryKey && !live.Identity && !identity:
		stmts = append(stmts, prefix+"DROP NOT NULL")
	}

	switch {
	case col.Default != nil && (live.Default == nil || *live.Default != *col.Default):
		stmts = append(stmts, prefix+"SET DEFAULT "+d.QuoteLiteral(*col.Default))
	case col.Default == nil && live.Default != nil:
		stmts = append(stmts, prefix+"DROP DEFAULT")
	}

	switch {
	case identity && !live.Identity:
		stmts = append(stmts, prefix+"ADD "+postgresIdentity)
	case !identity && live.Identity:
		stmts = append(stmts, prefix+"DROP IDENTITY")
	}
	return stmts
}

func (d Postgres) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.QuoteIdent(table), d.QuoteIdent(column))
}

// IndexName is the name given to indexes created for idx on table.
func (Postgres) IndexName(table string, idx schema.IndexSpec) string {
	suffix := "idx"
	if idx.Kind == schema.IndexUnique {
		suffix = "key"
	}
	return table + "_" + strings.Join(idx.Columns, "_") + "_" + suffix
}

func (d Postgres) AddIndex(table string, idx schema.IndexSpec) string {
	cols := quoteList(idx.Columns, d.QuoteIdent)
	switch idx.Kind {
	case schema.IndexPrimary:
		return fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)", d.QuoteIdent(table), cols)
	case schema.IndexUnique:
		return fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s)",
			d.QuoteIdent(d.IndexName(table, idx)), d.QuoteIdent(table), cols)
	default:
		return fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			d.QuoteIdent(d.IndexName(table, idx)), d.QuoteIdent(table), cols)
	}
}

func (d Postgres) DropIndex(_ string, idx LiveIndex) string {
	return "DROP INDEX " + d.QuoteIdent(idx.Name)
}

func (d Postgres) ReplacePrimaryKey(table string, old LiveIndex, idx schema.IndexSpec) string {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s, ADD PRIMARY KEY (%s)",
		d.QuoteIdent(table), d.QuoteIdent(old.Name), quoteList(idx.Columns, d.QuoteIdent))
}

func (d Postgres) DropPrimaryKey(table string, old LiveIndex) string {
	return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.QuoteIdent(table), d.QuoteIdent(old.Name))
}

func (d Postgres) ReadVersionSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		d.QuoteIdent("value"), d.QuoteIdent(schema.BookkeepingTable), d.QuoteIdent("name"))
}

func (d Postgres) UpsertVersionSQL() string {
	return fmt.Sprintf("INSERT INTO %[1]s (%[2]s, %[3]s) VALUES ($1, $2) ON CONFLICT (%[2]s) DO UPDATE SET %[3]s = EXCLUDED.%[3]s",
		d.QuoteIdent(schema.BookkeepingTable), d.QuoteIdent("name"), d.QuoteIdent("value"))
}

func (Postgres) ErrorCode(err error) string {
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

const postgresColumnsQuery = `
SELECT column_name, data_type, character_maximum_length, numeric_precision, numeric_scale,
       column_default, is_nullable, is_identity
  FROM information_schema.columns
 WHERE table_schema = current_schema() AND table_name = $1
 ORDER BY ordinal_position`

func (d Postgres) ReadColumns(ctx context.Context, q Querier, table string) ([]LiveColumn, error) {
	rows, err := q.QueryContext(ctx, postgresColumnsQuery, table)
	if err != nil {
		return nil, &IntrospectionError{Table: table, Op: "read columns", Err: err}
	}
	defer rows.Close()

	var cols []LiveColumn
	for rows.Next() {
		var (
			name, dataType, nullable, identity string
			charLen, precision, scale          sql.NullInt64
			def                                sql.NullString
		)
		if err := rows.Scan(&name, &dataType, &charLen, &precision, &scale, &def, &nullable, &identity); err != nil {
			return nil, &IntrospectionError{Table: table, Op: "scan column", Err: err}
		}
		c := LiveColumn{
			Name:     name,
			Type:     strings.ToUpper(dataType),
			NotNull:  nullable == "NO",
			Identity: identity == "YES",
		}
		switch {
		case charLen.Valid:
			c.Type += "(" + strconv.FormatInt(charLen.Int64, 10) + ")"
		case dataType == "numeric" && precision.Valid:
			c.Type += "(" + strconv.FormatInt(precision.Int64, 10) + "," + strconv.FormatInt(scale.Int64, 10) + ")"
		}
		if def.Valid {
			c.Default = postgresDefault(def.String)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &IntrospectionError{Table: table, Op: "read columns", Err: err}
	}
	rows.Close()

	if len(cols) == 0 {
		return nil, nil
	}

	indexes, err := d.ReadIndexes(ctx, q, table)
	if err != nil {
		return nil, err
	}
	for _, idx := range indexes {
		if idx.Kind != schema.IndexPrimary {
			continue
		}
		for i := range cols {
			for _, pk := range idx.Columns {
				if cols[i].Name == pk {
					cols[i].PrimaryKey = true
				}
			}
		}
	}

	finishColumns(cols, d.QuoteLiteral)
	return cols, nil
}

const postgresIndexesQuery = `
SELECT i.relname, ix.indisprimary, ix.indisunique, a.attname
  FROM pg_index ix
  JOIN pg_class t ON t.oid = ix.indrelid
  JOIN pg_class i ON i.oid = ix.indexrelid
  JOIN pg_namespace n ON n.oid = t.relnamespace
  JOIN LATERAL unnest(ix.indkey::int2[]) WITH ORDINALITY AS k(attnum, ord) ON true
  JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
 WHERE t.relkind = 'r' AND t.relname = $1 AND n.nspname = current_schema()
 ORDER BY i.relname, k.ord`

func (Postgres) ReadIndexes(ctx context.Context, q Querier, table string) (map[string]LiveIndex, error) {
	rows, err := q.QueryContext(ctx, postgresIndexesQuery, table)
	if err != nil {
		return nil, &IntrospectionError{Table: table, Op: "read indexes", Err: err}
	}
	defer rows.Close()

	indexes := make(map[string]LiveIndex)
	for rows.Next() {
		var (
			name, column      string
			primary, isUnique bool
		)
		if err := rows.Scan(&name, &primary, &isUnique, &column); err != nil {
			return nil, &IntrospectionError{Table: table, Op: "scan index", Err: err}
		}
		idx := indexes[name]
		idx.Name = name
		switch {
		case primary:
			idx.Kind = schema.IndexPrimary
		case isUnique:
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

// postgresDefault strips the cast PostgreSQL appends to column defaults, as in
// 'abc'::character varying. Non-literal expressions are kept verbatim.
func postgresDefault(raw string) *string {
	if v, rest, ok := unquoteLiteral(raw); ok && (rest == "" || strings.HasPrefix(rest, "::")) {
		return &v
	}
	return &raw
}
