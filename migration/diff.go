// Package migration computes and applies the DDL that converges a live
// database to a declared schema, gated by a stored schema version.
package migration

import (
	"slices"
	"sort"
	"strings"

	"github.com/GoCodeAlone/sqlschema/dialect"
	"github.com/GoCodeAlone/sqlschema/schema"
)

// ChangeKind is the differ's decision for one column or index.
type ChangeKind int

const (
	ChangeCreate ChangeKind = iota + 1
	ChangeModify
	ChangeDrop
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreate:
		return "create"
	case ChangeModify:
		return "modify"
	case ChangeDrop:
		return "drop"
	}
	return "none"
}

// ColumnChange is one column decision. Anchor is the declared predecessor
// ("" for first) and is meaningless for drops.
type ColumnChange struct {
	Kind   ChangeKind
	Name   string
	Column schema.ColumnSpec
	Live   *dialect.LiveColumn
	Anchor string
}

// IndexChange is one index decision.
type IndexChange struct {
	Kind  ChangeKind
	Index schema.IndexSpec
	Live  *dialect.LiveIndex
}

// TableDiff is the differ's full result for one table.
type TableDiff struct {
	Table schema.Table

	// CreateTable is set when the table has no live columns.
	CreateTable bool
	// Columns holds drops first, then creates and modifies in declared order.
	Columns []ColumnChange
	// Indexes holds non-primary drops first, then creates in declared order.
	Indexes []IndexChange
	// PendingPrimaryDrop is an existing primary key that no declared index
	// matches. It is never dropped on its own ahead of the index creates.
	PendingPrimaryDrop *dialect.LiveIndex
	// DeferAutoIncrement is set when columns must be created or modified
	// without auto-increment until the declared primary key exists.
	DeferAutoIncrement bool
}

// Empty reports whether the table already matches its declaration.
func (d *TableDiff) Empty() bool {
	return !d.CreateTable && len(d.Columns) == 0 && len(d.Indexes) == 0 && d.PendingPrimaryDrop == nil
}

// DiffTable compares the declared table against its live columns and indexes.
// Indexes are matched against the state the column drops leave behind.
func DiffTable(d dialect.Dialect, t schema.Table, live []dialect.LiveColumn, liveIdx map[string]dialect.LiveIndex) *TableDiff {
	diff := &TableDiff{Table: t}
	live, liveIdx = afterDrops(d, t, live, liveIdx)

	names := make([]string, 0, len(liveIdx))
	for name := range liveIdx {
		names = append(names, name)
	}
	sort.Strings(names)

	declaredPK, hasPK := t.PrimaryKey()
	pkReady := false
	for _, name := range names {
		li := liveIdx[name]
		if li.Kind == schema.IndexPrimary && hasPK && li.Spec().Equal(declaredPK) {
			pkReady = true
		}
	}
	diff.DeferAutoIncrement = d.IdentityRequiresPrimaryKey() && t.HasAutoIncrement() && hasPK && !pkReady

	if len(live) == 0 {
		diff.CreateTable = true
	} else {
		diff.Columns = diffColumns(d, t, live, !diff.DeferAutoIncrement)
	}

	for _, name := range names {
		li := liveIdx[name]
		if slices.ContainsFunc(t.Indexes, li.Spec().Equal) {
			continue
		}
		if li.Kind == schema.IndexPrimary {
			diff.PendingPrimaryDrop = &li
			continue
		}
		diff.Indexes = append(diff.Indexes, IndexChange{Kind: ChangeDrop, Index: li.Spec(), Live: &li})
	}

	for _, idx := range t.Indexes {
		exists := false
		for _, li := range liveIdx {
			if li.Spec().Equal(idx) {
				exists = true
				break
			}
		}
		if !exists {
			diff.Indexes = append(diff.Indexes, IndexChange{Kind: ChangeCreate, Index: idx})
		}
	}
	return diff
}

// afterDrops returns the live columns and indexes as they stand once the
// columns missing from t have been dropped. The server rewrites or removes
// affected indexes itself, so they must not be dropped again, and columns
// whose primary key went with them are no longer key columns.
func afterDrops(d dialect.Dialect, t schema.Table, live []dialect.LiveColumn, liveIdx map[string]dialect.LiveIndex) ([]dialect.LiveColumn, map[string]dialect.LiveIndex) {
	dropped := make(map[string]bool)
	for _, lc := range live {
		if _, declared := t.Column(lc.Name); !declared {
			dropped[lc.Name] = true
		}
	}
	if len(dropped) == 0 {
		return live, liveIdx
	}

	out := make(map[string]dialect.LiveIndex, len(liveIdx))
	keyCols := make(map[string]bool)
	for name, li := range liveIdx {
		if slices.ContainsFunc(li.Columns, func(c string) bool { return dropped[c] }) {
			if d.DropColumnRemovesIndexes() {
				continue
			}
			var kept []string
			for _, c := range li.Columns {
				if !dropped[c] {
					kept = append(kept, c)
				}
			}
			if len(kept) == 0 {
				continue
			}
			li.Columns = kept
		}
		out[name] = li
		if li.Kind == schema.IndexPrimary {
			for _, c := range li.Columns {
				keyCols[c] = true
			}
		}
	}

	cols := slices.Clone(live)
	for i := range cols {
		cols[i].PrimaryKey = cols[i].PrimaryKey && keyCols[cols[i].Name]
	}
	return cols, out
}

// diffColumns plans column drops, creates and modifies. Column positions are
// compared against a simulated live order that already reflects the changes
// planned so far, so moving one column does not cascade into its neighbours.
func diffColumns(d dialect.Dialect, t schema.Table, live []dialect.LiveColumn, withAutoIncrement bool) []ColumnChange {
	var changes []ColumnChange

	byName := make(map[string]*dialect.LiveColumn, len(live))
	order := make([]string, 0, len(live))
	for i := range live {
		lc := &live[i]
		if _, declared := t.Column(lc.Name); !declared {
			changes = append(changes, ColumnChange{Kind: ChangeDrop, Name: lc.Name, Live: lc})
			continue
		}
		byName[lc.Name] = lc
		order = append(order, lc.Name)
	}

	anchor := ""
	for _, col := range t.Columns {
		lc, exists := byName[col.Name]
		switch {
		case !exists:
			changes = append(changes, ColumnChange{Kind: ChangeCreate, Name: col.Name, Column: col, Anchor: anchor})
			order = placeAfter(order, col.Name, anchor)
		default:
			changed := !definitionMatches(d.ColumnDefinition(col, withAutoIncrement), lc.Definition, lc.PrimaryKey)
			moved := d.SupportsColumnPosition() && predecessor(order, col.Name) != anchor
			if changed || moved {
				changes = append(changes, ColumnChange{Kind: ChangeModify, Name: col.Name, Column: col, Live: lc, Anchor: anchor})
			}
			if moved {
				order = placeAfter(order, col.Name, anchor)
			}
		}
		anchor = col.Name
	}
	return changes
}

// definitionMatches compares a declared definition with a live one. Servers
// attach NOT NULL and a DEFAULT to primary key columns implicitly, so for
// those the live definition is also tried without NOT NULL and then without
// its DEFAULT clause.
func definitionMatches(declared, live string, primaryKey bool) bool {
	if declared == live {
		return true
	}
	if !primaryKey {
		return false
	}
	reduced := strings.Replace(live, " NOT NULL", "", 1)
	if declared == reduced {
		return true
	}
	if i := strings.Index(reduced, " DEFAULT "); i > 0 {
		return declared == reduced[:i]
	}
	return false
}

func predecessor(order []string, name string) string {
	i := slices.Index(order, name)
	if i <= 0 {
		return ""
	}
	return order[i-1]
}

// placeAfter moves or inserts name directly after anchor ("" for first).
func placeAfter(order []string, name, anchor string) []string {
	if i := slices.Index(order, name); i >= 0 {
		order = slices.Delete(order, i, i+1)
	}
	pos := 0
	if anchor != "" {
		pos = slices.Index(order, anchor) + 1
	}
	return slices.Insert(order, pos, name)
}
