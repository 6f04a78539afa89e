package schema

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
)

// Queryer is the narrow slice of *sql.DB introspection needs — any
// database/sql-compatible connection (lib/pq or pgx's stdlib adapter)
// satisfies it without schema importing a specific driver.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// LoadFromDB builds a View by introspecting information_schema on a
// live endpoint (spec.md §4.5 mode (a)). It mirrors the teacher's own
// sqlsmith `extractTables`, generalized to capture constraints and
// indexes and to normalize types via NormalizeType.
func LoadFromDB(ctx context.Context, db Queryer) (*View, error) {
	tables, err := loadColumns(ctx, db)
	if err != nil {
		return nil, errors.Wrap(err, "introspect columns")
	}
	if err := loadConstraints(ctx, db, tables); err != nil {
		return nil, errors.Wrap(err, "introspect constraints")
	}
	if err := loadIndexes(ctx, db, tables); err != nil {
		return nil, errors.Wrap(err, "introspect indexes")
	}

	out := make([]Table, 0, len(tables))
	for _, t := range tables {
		out = append(out, *t)
	}
	return NewView(out), nil
}

func loadColumns(ctx context.Context, db Queryer) (map[string]*Table, error) {
	rows, err := db.QueryContext(ctx, `
SELECT
	table_name,
	column_name,
	data_type,
	is_nullable = 'YES' AS nullable,
	column_default
FROM information_schema.columns
WHERE table_schema = 'public'
ORDER BY table_name, ordinal_position
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := map[string]*Table{}
	for rows.Next() {
		var tableName, columnName, dataType string
		var nullable bool
		var def sql.NullString
		if err := rows.Scan(&tableName, &columnName, &dataType, &nullable, &def); err != nil {
			return nil, err
		}
		t, ok := tables[tableName]
		if !ok {
			t = &Table{Name: tableName}
			tables[tableName] = t
		}
		col := Column{
			Name:     columnName,
			Type:     NormalizeType(dataType),
			RawType:  dataType,
			Nullable: nullable,
		}
		if def.Valid {
			v := def.String
			col.Default = &v
		}
		t.Columns = append(t.Columns, col)
	}
	return tables, rows.Err()
}

func loadConstraints(ctx context.Context, db Queryer, tables map[string]*Table) error {
	rows, err := db.QueryContext(ctx, `
SELECT
	tc.table_name,
	tc.constraint_name,
	tc.constraint_type,
	kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
	ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.table_schema = 'public'
ORDER BY tc.table_name, tc.constraint_name, kcu.ordinal_position
`)
	if err != nil {
		return err
	}
	defer rows.Close()

	byKey := map[[2]string]*Constraint{}
	for rows.Next() {
		var tableName, name, kind, column string
		if err := rows.Scan(&tableName, &name, &kind, &column); err != nil {
			return err
		}
		t, ok := tables[tableName]
		if !ok {
			continue
		}
		key := [2]string{tableName, name}
		c, ok := byKey[key]
		if !ok {
			c = &Constraint{Name: name, Kind: kind}
			byKey[key] = c
			t.Constraints = append(t.Constraints, *c)
		}
		c.Columns = append(c.Columns, column)
		// Keep the slice stored on the table in sync with the pointer's
		// latest column list.
		for i := range t.Constraints {
			if t.Constraints[i].Name == name {
				t.Constraints[i].Columns = c.Columns
			}
		}
		if kind == "PRIMARY KEY" {
			markPK(t, column)
		}
	}
	return rows.Err()
}

func markPK(t *Table, column string) {
	for i := range t.Columns {
		if t.Columns[i].Name == column {
			t.Columns[i].PK = true
		}
	}
}

func loadIndexes(ctx context.Context, db Queryer, tables map[string]*Table) error {
	rows, err := db.QueryContext(ctx, `
SELECT
	t.relname AS table_name,
	i.relname AS index_name,
	ix.indisunique,
	a.attname
FROM pg_index ix
JOIN pg_class t ON t.oid = ix.indrelid
JOIN pg_class i ON i.oid = ix.indexrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
WHERE n.nspname = 'public'
ORDER BY t.relname, i.relname
`)
	if err != nil {
		// Index introspection is best-effort: some endpoints (or test
		// doubles) may not expose the pg_catalog tables. A failure here
		// degrades to "no index metadata," not a fatal SchemaError.
		return nil //nolint:nilerr
	}
	defer rows.Close()

	byKey := map[[2]string]*Index{}
	for rows.Next() {
		var tableName, indexName string
		var unique bool
		var column string
		if err := rows.Scan(&tableName, &indexName, &unique, &column); err != nil {
			return err
		}
		t, ok := tables[tableName]
		if !ok {
			continue
		}
		key := [2]string{tableName, indexName}
		idx, ok := byKey[key]
		if !ok {
			idx = &Index{Name: indexName, Unique: unique}
			byKey[key] = idx
			t.Indexes = append(t.Indexes, *idx)
		}
		idx.Columns = append(idx.Columns, column)
		for i := range t.Indexes {
			if t.Indexes[i].Name == indexName {
				t.Indexes[i].Columns = idx.Columns
			}
		}
	}
	return rows.Err()
}
