package migration

import (
	"github.com/GoCodeAlone/sqlschema/dialect"
	"github.com/GoCodeAlone/sqlschema/schema"
)

// StatementKind classifies a generated statement.
type StatementKind string

const (
	KindCreateTable         StatementKind = "create_table"
	KindDropColumn          StatementKind = "drop_column"
	KindAddColumn           StatementKind = "add_column"
	KindModifyColumn        StatementKind = "modify_column"
	KindDropIndex           StatementKind = "drop_index"
	KindAddIndex            StatementKind = "add_index"
	KindReplacePrimaryKey   StatementKind = "replace_primary_key"
	KindDropPrimaryKey      StatementKind = "drop_primary_key"
	KindAttachAutoIncrement StatementKind = "attach_auto_increment"
)

// Statement is one DDL statement with the table it converges.
type Statement struct {
	Table string        `json:"table"`
	Kind  StatementKind `json:"kind"`
	SQL   string        `json:"sql"`
}

// Generate renders a diff as ordered DDL. The order is: table creation or
// column drops, column creates and modifies in declared order, index drops,
// index creates (an unmatched primary key is replaced together with its
// successor), and finally auto-increment attachment for columns that had to
// wait for the primary key.
func Generate(d dialect.Dialect, diff *TableDiff) []Statement {
	t := diff.Table
	withAI := !diff.DeferAutoIncrement

	var out []Statement
	emit := func(kind StatementKind, sql ...string) {
		for _, s := range sql {
			out = append(out, Statement{Table: t.Name, Kind: kind, SQL: s})
		}
	}

	if diff.CreateTable {
		emit(KindCreateTable, d.CreateTable(t.Name, t.Columns, withAI))
	}

	for _, c := range diff.Columns {
		if c.Kind == ChangeDrop {
			emit(KindDropColumn, d.DropColumn(t.Name, c.Name))
		}
	}
	for _, c := range diff.Columns {
		switch c.Kind {
		case ChangeCreate:
			emit(KindAddColumn, d.AddColumn(t.Name, c.Column, c.Anchor, withAI)...)
		case ChangeModify:
			emit(KindModifyColumn, d.ModifyColumn(t.Name, c.Column, *c.Live, c.Anchor, withAI)...)
		}
	}

	for _, ic := range diff.Indexes {
		if ic.Kind == ChangeDrop {
			emit(KindDropIndex, d.DropIndex(t.Name, *ic.Live))
		}
	}

	pending := diff.PendingPrimaryDrop
	primaryCreated := false
	for _, ic := range diff.Indexes {
		if ic.Kind != ChangeCreate {
			continue
		}
		if ic.Index.Kind == schema.IndexPrimary {
			primaryCreated = true
			if pending != nil {
				emit(KindReplacePrimaryKey, d.ReplacePrimaryKey(t.Name, *pending, ic.Index))
				pending = nil
				continue
			}
		}
		emit(KindAddIndex, d.AddIndex(t.Name, ic.Index))
	}
	if pending != nil {
		emit(KindDropPrimaryKey, d.DropPrimaryKey(t.Name, *pending))
	}

	if diff.DeferAutoIncrement && primaryCreated {
		pk, _ := t.PrimaryKey()
		anchor := ""
		for _, col := range t.Columns {
			if col.AutoIncrement {
				emit(KindAttachAutoIncrement, d.ModifyColumn(t.Name, col, projected(d, col, pk), anchor, true)...)
			}
			anchor = col.Name
		}
	}
	return out
}

// projected describes a column as it stands after the earlier statements of
// the same run created it without auto-increment.
func projected(d dialect.Dialect, col schema.ColumnSpec, pk schema.IndexSpec) dialect.LiveColumn {
	lc := dialect.LiveColumn{
		Name:     col.Name,
		Type:     d.ColumnType(col),
		Unsigned: col.Unsigned,
		NotNull:  col.NotNull,
		Default:  col.Default,
	}
	for _, name := range pk.Columns {
		if name == col.Name {
			lc.PrimaryKey = true
		}
	}
	lc.Definition = d.ColumnDefinition(col, false)
	return lc
}
