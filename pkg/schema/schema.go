// Package schema implements the SchemaView (component C5): an
// immutable snapshot of a target database's tables, columns, and
// types, used by schema-aware grammar elements (Field, Table) and
// rebuilt after any successful DDL the coordinator applies.
package schema

import "sort"

// TypeTag is the normalized type enumeration of spec.md §4.5. Category
// helpers elsewhere map concrete SQL types onto this small set so
// grammars can reason about "a numeric column" without caring whether
// the underlying type is int4, int8, or numeric.
type TypeTag string

const (
	TypeInteger  TypeTag = "integer"
	TypeNumeric  TypeTag = "numeric"
	TypeBoolean  TypeTag = "boolean"
	TypeString   TypeTag = "string"
	TypeBytes    TypeTag = "bytes"
	TypeTemporal TypeTag = "temporal"
	TypeJSON     TypeTag = "json"
	TypeArray    TypeTag = "array"
	TypeUUID     TypeTag = "uuid"
	TypeNetwork  TypeTag = "network"
	TypeRange    TypeTag = "range"
	TypeOther    TypeTag = "other"
)

// Column describes one column of a table.
type Column struct {
	Name     string
	Type     TypeTag
	RawType  string // the source SQL type name, for reference/debugging
	Nullable bool
	PK       bool
	Default  *string
}

// Index describes one index on a table.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// Constraint describes one table-level constraint (PRIMARY KEY,
// UNIQUE, CHECK, REFERENCES, ...).
type Constraint struct {
	Name    string
	Kind    string
	Columns []string
	// RefTable/RefColumns are populated for REFERENCES constraints.
	RefTable   string
	RefColumns []string
	CheckExpr  string
}

// Table describes one table and its columns/constraints/indexes.
type Table struct {
	Name        string
	Columns     []Column
	Constraints []Constraint
	Indexes     []Index
}

// Column looks up a column by name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnRef identifies a column in the context of its owning table,
// used by flattened, cross-table helpers like AllColumns.
type ColumnRef struct {
	Table  string
	Column Column
}

// View is an immutable snapshot of the tables visible to a run. Zero
// value is an empty, valid view (the documented "empty SchemaView"
// degraded state of spec.md §7 SchemaError).
type View struct {
	tables map[string]Table
}

// NewView builds a View from a table list. Tables are de-duplicated by
// name, last write wins.
func NewView(tables []Table) *View {
	m := make(map[string]Table, len(tables))
	for _, t := range tables {
		m[t.Name] = t
	}
	return &View{tables: m}
}

// Empty returns a View with no tables, the degraded state a SchemaError
// mid-run leaves behind per spec.md §7.
func Empty() *View {
	return &View{tables: map[string]Table{}}
}

// Tables returns all tables, sorted lexicographically by name so that
// RNG-driven selection over them is reproducible (spec.md §4.3 "Tie-
// breaks and ordering").
func (v *View) Tables() []Table {
	if v == nil {
		return nil
	}
	out := make([]Table, 0, len(v.tables))
	for _, t := range v.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Table looks up a single table by name.
func (v *View) Table(name string) (Table, bool) {
	if v == nil {
		return Table{}, false
	}
	t, ok := v.tables[name]
	return t, ok
}

// TableNames returns all table names, sorted.
func (v *View) TableNames() []string {
	tables := v.Tables()
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return names
}

// TablesMatching returns every table for which pred returns true,
// sorted by name.
func (v *View) TablesMatching(pred func(Table) bool) []Table {
	var out []Table
	for _, t := range v.Tables() {
		if pred(t) {
			out = append(out, t)
		}
	}
	return out
}

// NumericColumns returns the integer/numeric columns of table, sorted
// by name.
func (v *View) NumericColumns(table string) []Column {
	return v.columnsWhere(table, func(c Column) bool {
		return c.Type == TypeInteger || c.Type == TypeNumeric
	})
}

// StringColumns returns the string columns of table, sorted by name.
func (v *View) StringColumns(table string) []Column {
	return v.columnsWhere(table, func(c Column) bool { return c.Type == TypeString })
}

// PKColumns returns the primary-key columns of table, sorted by name.
func (v *View) PKColumns(table string) []Column {
	return v.columnsWhere(table, func(c Column) bool { return c.PK })
}

func (v *View) columnsWhere(table string, pred func(Column) bool) []Column {
	t, ok := v.Table(table)
	if !ok {
		return nil
	}
	var out []Column
	for _, c := range t.Columns {
		if pred(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AllColumns flattens every table's columns into a single slice, sorted
// by (table, column) name, for Field elements that pick across the
// whole schema rather than one table.
func (v *View) AllColumns() []ColumnRef {
	var out []ColumnRef
	for _, t := range v.Tables() {
		cols := append([]Column(nil), t.Columns...)
		sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
		for _, c := range cols {
			out = append(out, ColumnRef{Table: t.Name, Column: c})
		}
	}
	return out
}

// ColumnsMatching flattens and filters AllColumns by a type tag filter,
// nil means "any type".
func (v *View) ColumnsMatching(tag *TypeTag) []ColumnRef {
	all := v.AllColumns()
	if tag == nil {
		return all
	}
	var out []ColumnRef
	for _, c := range all {
		if c.Column.Type == *tag {
			out = append(out, c)
		}
	}
	return out
}

// IsEmpty reports whether the view has no tables.
func (v *View) IsEmpty() bool {
	return v == nil || len(v.tables) == 0
}
