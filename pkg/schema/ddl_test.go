package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDDLCreateTableBasics(t *testing.T) {
	ddl := `
CREATE TABLE accounts (
	id BIGINT PRIMARY KEY,
	name VARCHAR(64) NOT NULL,
	balance NUMERIC(12, 2) DEFAULT 0,
	email TEXT UNIQUE,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL
);
`
	view, warnings, err := ParseDDL(ddl)
	require.NoError(t, err)
	require.Empty(t, warnings)

	tbl, ok := view.Table("accounts")
	require.True(t, ok)
	require.Len(t, tbl.Columns, 5)

	id, ok := tbl.Column("id")
	require.True(t, ok)
	require.True(t, id.PK)
	require.Equal(t, TypeInteger, id.Type)
	require.False(t, id.Nullable)

	name, ok := tbl.Column("name")
	require.True(t, ok)
	require.False(t, name.Nullable)
	require.Equal(t, TypeString, name.Type)

	balance, ok := tbl.Column("balance")
	require.True(t, ok)
	require.NotNil(t, balance.Default)
	require.Equal(t, "0", *balance.Default)
	require.True(t, balance.Nullable)

	email, ok := tbl.Column("email")
	require.True(t, ok)
	require.True(t, email.Nullable)

	createdAt, ok := tbl.Column("created_at")
	require.True(t, ok)
	require.Equal(t, TypeTemporal, createdAt.Type)
	require.False(t, createdAt.Nullable)

	var uniqueOnEmail bool
	for _, c := range tbl.Constraints {
		if c.Kind == "UNIQUE" && len(c.Columns) == 1 && c.Columns[0] == "email" {
			uniqueOnEmail = true
		}
	}
	require.True(t, uniqueOnEmail)
}

func TestParseDDLTableLevelConstraints(t *testing.T) {
	ddl := `
CREATE TABLE orders (
	id BIGINT,
	account_id BIGINT,
	amount NUMERIC,
	PRIMARY KEY (id),
	UNIQUE (account_id, amount),
	CHECK (amount > 0),
	FOREIGN KEY (account_id) REFERENCES accounts(id)
);
`
	view, _, err := ParseDDL(ddl)
	require.NoError(t, err)

	tbl, ok := view.Table("orders")
	require.True(t, ok)

	idCol, ok := tbl.Column("id")
	require.True(t, ok)
	require.True(t, idCol.PK)

	var sawUnique, sawCheck, sawFK bool
	for _, c := range tbl.Constraints {
		switch c.Kind {
		case "UNIQUE":
			sawUnique = true
			require.Equal(t, []string{"account_id", "amount"}, c.Columns)
		case "CHECK":
			sawCheck = true
			require.Contains(t, c.CheckExpr, "amount > 0")
		case "FOREIGN KEY":
			sawFK = true
			require.Equal(t, "accounts", c.RefTable)
			require.Equal(t, []string{"id"}, c.RefColumns)
		}
	}
	require.True(t, sawUnique)
	require.True(t, sawCheck)
	require.True(t, sawFK)
}

func TestParseDDLCreateIndex(t *testing.T) {
	ddl := `
CREATE TABLE orders (id BIGINT PRIMARY KEY, account_id BIGINT);
CREATE INDEX orders_account_id_idx ON orders (account_id);
CREATE UNIQUE INDEX orders_id_uidx ON orders (id);
`
	view, warnings, err := ParseDDL(ddl)
	require.NoError(t, err)
	require.Empty(t, warnings)

	tbl, ok := view.Table("orders")
	require.True(t, ok)
	require.Len(t, tbl.Indexes, 2)

	byName := map[string]Index{}
	for _, idx := range tbl.Indexes {
		byName[idx.Name] = idx
	}
	require.Equal(t, []string{"account_id"}, byName["orders_account_id_idx"].Columns)
	require.False(t, byName["orders_account_id_idx"].Unique)
	require.True(t, byName["orders_id_uidx"].Unique)
}

func TestParseDDLTolerantOfUnknownStatements(t *testing.T) {
	ddl := `
GRANT SELECT ON accounts TO some_role;
CREATE TABLE accounts (id BIGINT PRIMARY KEY);
COMMENT ON TABLE accounts IS 'customer accounts';
`
	view, warnings, err := ParseDDL(ddl)
	require.NoError(t, err)
	require.Len(t, warnings, 2)

	_, ok := view.Table("accounts")
	require.True(t, ok)
}

func TestParseDDLSemicolonInsideCheckExpressionDoesNotSplitStatement(t *testing.T) {
	ddl := `CREATE TABLE t (id BIGINT, CHECK (id > 0));`
	view, _, err := ParseDDL(ddl)
	require.NoError(t, err)
	_, ok := view.Table("t")
	require.True(t, ok)
}

func TestParseDDLMultipleTables(t *testing.T) {
	ddl := `
CREATE TABLE a (id BIGINT PRIMARY KEY);
CREATE TABLE b (id BIGINT PRIMARY KEY, a_id BIGINT REFERENCES a(id));
`
	view, _, err := ParseDDL(ddl)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, view.TableNames())

	b, ok := view.Table("b")
	require.True(t, ok)
	var sawFK bool
	for _, c := range b.Constraints {
		if c.Kind == "FOREIGN KEY" {
			sawFK = true
			require.Equal(t, "a", c.RefTable)
		}
	}
	require.True(t, sawFK)
}
