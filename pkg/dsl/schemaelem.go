package dsl

import "github.com/sqlforge-labs/rqg/pkg/schema"

// fallbackColumn is the documented safe default Field emits, and
// Table's last resort when the schema has no tables at all: "this
// fallback is the source-observed behavior and is documented, not
// silently chosen."
const fallbackColumn = "id"

// Field picks a column name from the schema view matching an optional
// predicate. A nil Filter matches every column.
type Field struct {
	Filter func(schema.ColumnRef) bool
}

// Expand filters ctx.Schema's flattened, sorted columns by Filter and
// picks one uniformly. An empty result (no schema, or no column
// matches) falls back to "id" and counts a warning.
func (f Field) Expand(ctx *Context) (string, error) {
	var cands []schema.ColumnRef
	for _, c := range ctx.Schema.AllColumns() {
		if f.Filter == nil || f.Filter(c) {
			cands = append(cands, c)
		}
	}
	if len(cands) == 0 {
		ctx.Warnings++
		return fallbackColumn, nil
	}
	return cands[ctx.RNG.Intn(len(cands))].Column.Name, nil
}

// Table picks a table name from the schema view matching an optional
// predicate. A nil Filter matches every table.
type Table struct {
	Filter func(schema.Table) bool
}

// Expand filters ctx.Schema's sorted tables by Filter and picks one
// uniformly. An empty result falls back to the first table name in
// the (unfiltered) schema, or "id" if the schema has no tables at all.
func (t Table) Expand(ctx *Context) (string, error) {
	pred := t.Filter
	if pred == nil {
		pred = func(schema.Table) bool { return true }
	}
	cands := ctx.Schema.TablesMatching(pred)
	if len(cands) == 0 {
		ctx.Warnings++
		all := ctx.Schema.Tables()
		if len(all) == 0 {
			return fallbackColumn, nil
		}
		return all[0].Name, nil
	}
	return cands[ctx.RNG.Intn(len(cands))].Name, nil
}
