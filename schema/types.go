// Package schema holds the typed form of a schema declaration and the parser
// for the per-table schema language.
package schema

import "strings"

// BookkeepingTable is the reserved table that stores the applied schema
// version. Callers may not declare it; the migration runner injects it.
const BookkeepingTable = "cfg_dbase"

// BookkeepingSchema is the schema-language text of BookkeepingTable.
const BookkeepingSchema = `
	name C(64),
	value C(64),
	INDEX PRIMARY (name)
`

// ColumnSpec is one declared column. Declared columns are ordered and the
// order determines physical column position.
type ColumnSpec struct {
	Name          string
	Type          TypeCode
	Args          string  // size or canonical enum value list, sized types only
	Unsigned      bool
	AutoIncrement bool
	NotNull       bool
	Default       *string // raw, unescaped literal
}

// IndexKind distinguishes plain, unique and primary indexes.
type IndexKind int

const (
	IndexPlain IndexKind = iota
	IndexUnique
	IndexPrimary
)

func (k IndexKind) String() string {
	switch k {
	case IndexUnique:
		return "UNIQUE"
	case IndexPrimary:
		return "PRIMARY"
	default:
		return "INDEX"
	}
}

// IndexSpec is one declared index. Column order is significant.
type IndexSpec struct {
	Kind    IndexKind
	Columns []string
}

// Equal reports whether two indexes have the same kind and ordered columns.
func (i IndexSpec) Equal(o IndexSpec) bool {
	if i.Kind != o.Kind || len(i.Columns) != len(o.Columns) {
		return false
	}
	for n := range i.Columns {
		if i.Columns[n] != o.Columns[n] {
			return false
		}
	}
	return true
}

func (i IndexSpec) String() string {
	return i.Kind.String() + " (" + strings.Join(i.Columns, ", ") + ")"
}

// Table is the declared structure of one table.
type Table struct {
	Name    string
	Columns []ColumnSpec
	Indexes []IndexSpec
}

// PrimaryKey returns the declared primary index, if any.
func (t *Table) PrimaryKey() (IndexSpec, bool) {
	for _, idx := range t.Indexes {
		if idx.Kind == IndexPrimary {
			return idx, true
		}
	}
	return IndexSpec{}, false
}

// HasAutoIncrement reports whether any declared column is auto-increment.
func (t *Table) HasAutoIncrement() bool {
	for _, c := range t.Columns {
		if c.AutoIncrement {
			return true
		}
	}
	return false
}

// Column looks up a declared column by name.
func (t *Table) Column(name string) (ColumnSpec, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// Declaration is the full declared schema: ordered tables plus the version
// they correspond to.
type Declaration struct {
	Version float64
	Tables  []Table
}

// NewDeclaration returns an empty declaration for the given version.
func NewDeclaration(version float64) *Declaration {
	return &Declaration{Version: version}
}

// AddTable parses text as the declaration of table name and appends it.
func (d *Declaration) AddTable(name, text string) error {
	if err := d.checkName(name); err != nil {
		return err
	}
	t, err := ParseTable(name, text)
	if err != nil {
		return err
	}
	d.Tables = append(d.Tables, *t)
	return nil
}

// Validate checks table names of a declaration built without AddTable.
func (d *Declaration) Validate() error {
	seen := make(map[string]bool, len(d.Tables))
	for _, t := range d.Tables {
		if t.Name == "" {
			return &ConfigError{Field: "table", Value: t.Name, Err: ErrInvalidTableName}
		}
		if t.Name == BookkeepingTable {
			return &ConfigError{Field: "table", Value: t.Name, Err: ErrReservedTable}
		}
		if seen[t.Name] {
			return &ConfigError{Field: "table", Value: t.Name, Err: ErrDuplicateTable}
		}
		seen[t.Name] = true
	}
	return nil
}

func (d *Declaration) checkName(name string) error {
	if !isIdentifier(name) {
		return &ConfigError{Field: "table", Value: name, Err: ErrInvalidTableName}
	}
	if name == BookkeepingTable {
		return &ConfigError{Field: "table", Value: name, Err: ErrReservedTable}
	}
	for _, t := range d.Tables {
		if t.Name == name {
			return &ConfigError{Field: "table", Value: name, Err: ErrDuplicateTable}
		}
	}
	return nil
}
