package schema

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Warning is a non-fatal note produced while parsing a DDL script —
// spec.md §4.5's "other statements are tolerated and ignored with a
// warning."
type Warning struct {
	Statement string
	Reason    string
}

// ParseDDL builds a View from a DDL script using the reduced subset of
// spec.md §4.5: CREATE TABLE, PRIMARY KEY, UNIQUE, NOT NULL, DEFAULT,
// REFERENCES, CHECK, CREATE INDEX. Every other statement is skipped and
// reported as a Warning rather than failing the parse — a DDL script
// may freely contain statements (GRANT, COMMENT, extension setup) this
// subset doesn't need to understand.
//
// This is intentionally not a general SQL parser: it recognizes just
// enough surface syntax to recover table/column/constraint/index
// metadata for schema-aware generation, per the explicit scope note in
// spec.md §4.5.
func ParseDDL(ddl string) (*View, []Warning, error) {
	statements := splitStatements(ddl)
	tables := map[string]*Table{}
	var warnings []Warning

	for _, stmt := range statements {
		trimmed := strings.TrimSpace(stmt)
		if trimmed == "" {
			continue
		}
		upper := strings.ToUpper(trimmed)
		switch {
		case strings.HasPrefix(upper, "CREATE TABLE"):
			t, err := parseCreateTable(trimmed)
			if err != nil {
				return nil, warnings, errors.Wrapf(err, "parse CREATE TABLE")
			}
			tables[t.Name] = t
		case strings.HasPrefix(upper, "CREATE UNIQUE INDEX"), strings.HasPrefix(upper, "CREATE INDEX"):
			if err := parseCreateIndex(trimmed, tables); err != nil {
				warnings = append(warnings, Warning{Statement: trimmed, Reason: err.Error()})
			}
		default:
			warnings = append(warnings, Warning{Statement: trimmed, Reason: "statement kind not recognized by the reduced DDL parser"})
		}
	}

	out := make([]Table, 0, len(tables))
	for _, t := range tables {
		out = append(out, *t)
	}
	return NewView(out), warnings, nil
}

// splitStatements splits a DDL script on top-level semicolons, tracking
// parenthesis depth and single-quoted strings so that semicolons inside
// CHECK(...) expressions or string literals don't split a statement.
func splitStatements(ddl string) []string {
	var stmts []string
	var cur strings.Builder
	depth := 0
	inQuote := false

	runes := []rune(ddl)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\'' && !inQuote:
			inQuote = true
			cur.WriteRune(r)
		case r == '\'' && inQuote:
			inQuote = false
			cur.WriteRune(r)
		case inQuote:
			cur.WriteRune(r)
		case r == '(':
			depth++
			cur.WriteRune(r)
		case r == ')':
			if depth > 0 {
				depth--
			}
			cur.WriteRune(r)
		case r == ';' && depth == 0:
			stmts = append(stmts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if strings.TrimSpace(cur.String()) != "" {
		stmts = append(stmts, cur.String())
	}
	return stmts
}

// splitTopLevel splits s on sep at paren-depth 0, outside quotes — used
// to split column/constraint definitions inside a CREATE TABLE's
// parenthesized body.
func splitTopLevel(s string, sep rune) []string {
	var parts []string
	var cur strings.Builder
	depth := 0
	inQuote := false

	for _, r := range s {
		switch {
		case r == '\'' && !inQuote:
			inQuote = true
			cur.WriteRune(r)
		case r == '\'' && inQuote:
			inQuote = false
			cur.WriteRune(r)
		case inQuote:
			cur.WriteRune(r)
		case r == '(':
			depth++
			cur.WriteRune(r)
		case r == ')':
			if depth > 0 {
				depth--
			}
			cur.WriteRune(r)
		case r == sep && depth == 0:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	parts = append(parts, cur.String())
	return parts
}

func outerParens(s string) (string, bool) {
	open := strings.IndexRune(s, '(')
	last := strings.LastIndex(s, ")")
	if open < 0 || last < 0 || last < open {
		return "", false
	}
	return s[open+1 : last], true
}

func parseCreateTable(stmt string) (*Table, error) {
	idx := strings.Index(strings.ToUpper(stmt), "CREATE TABLE")
	origRest := stmt[idx+len("CREATE TABLE"):]
	origRest = strings.TrimSpace(origRest)
	if strings.HasPrefix(strings.ToUpper(origRest), "IF NOT EXISTS") {
		origRest = strings.TrimSpace(origRest[len("IF NOT EXISTS"):])
	}

	parenIdx := strings.IndexRune(origRest, '(')
	if parenIdx < 0 {
		return nil, errors.Newf("CREATE TABLE missing column list")
	}
	name := strings.TrimSpace(origRest[:parenIdx])
	name = strings.Trim(name, `"`)

	body, ok := outerParens(origRest)
	if !ok {
		return nil, errors.Newf("CREATE TABLE %s: unbalanced parentheses", name)
	}

	t := &Table{Name: name}
	items := splitTopLevel(body, ',')
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if err := parseTableItem(t, item); err != nil {
			return nil, errors.Wrapf(err, "table %s", name)
		}
	}
	return t, nil
}

func parseTableItem(t *Table, item string) error {
	upper := strings.ToUpper(item)
	switch {
	case strings.HasPrefix(upper, "PRIMARY KEY"):
		cols := parenColumnList(item)
		for _, c := range cols {
			markPK(t, c)
		}
		t.Constraints = append(t.Constraints, Constraint{Kind: "PRIMARY KEY", Columns: cols})
		return nil
	case strings.HasPrefix(upper, "UNIQUE"):
		cols := parenColumnList(item)
		t.Constraints = append(t.Constraints, Constraint{Kind: "UNIQUE", Columns: cols})
		return nil
	case strings.HasPrefix(upper, "CHECK"):
		expr, _ := outerParens(item)
		t.Constraints = append(t.Constraints, Constraint{Kind: "CHECK", CheckExpr: strings.TrimSpace(expr)})
		return nil
	case strings.HasPrefix(upper, "FOREIGN KEY"), strings.HasPrefix(upper, "CONSTRAINT"):
		return parseTableReference(t, item)
	default:
		return parseColumnDef(t, item)
	}
}

func parenColumnList(s string) []string {
	inner, ok := outerParens(s)
	if !ok {
		return nil
	}
	var cols []string
	for _, c := range strings.Split(inner, ",") {
		c = strings.TrimSpace(strings.Trim(strings.TrimSpace(c), `"`))
		if c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

func parseTableReference(t *Table, item string) error {
	upperIdx := strings.Index(strings.ToUpper(item), "REFERENCES")
	if upperIdx < 0 {
		// A bare CONSTRAINT ... CHECK(...) or similar; best-effort skip.
		return nil
	}
	cols := parenColumnList(item[:upperIdx])
	refPart := strings.TrimSpace(item[upperIdx+len("REFERENCES"):])
	refTable, refCols := parseTableAndColumns(refPart)
	t.Constraints = append(t.Constraints, Constraint{
		Kind:       "FOREIGN KEY",
		Columns:    cols,
		RefTable:   refTable,
		RefColumns: refCols,
	})
	return nil
}

func parseTableAndColumns(s string) (string, []string) {
	parenIdx := strings.IndexRune(s, '(')
	if parenIdx < 0 {
		return strings.TrimSpace(s), nil
	}
	table := strings.TrimSpace(s[:parenIdx])
	cols := parenColumnList(s[parenIdx:])
	return table, cols
}

func parseColumnDef(t *Table, item string) error {
	fields := tokenize(item)
	if len(fields) < 2 {
		return errors.Newf("column definition %q: expected at least a name and a type", item)
	}
	name := strings.Trim(fields[0], `"`)
	typeTokens, rest := consumeType(fields[1:])

	col := Column{Name: name, RawType: strings.Join(typeTokens, " "), Type: NormalizeType(strings.Join(typeTokens, " "))}

	for i := 0; i < len(rest); i++ {
		word := strings.ToUpper(rest[i])
		switch word {
		case "PRIMARY":
			if i+1 < len(rest) && strings.ToUpper(rest[i+1]) == "KEY" {
				col.PK = true
				i++
			}
		case "UNIQUE":
			t.Constraints = append(t.Constraints, Constraint{Kind: "UNIQUE", Columns: []string{name}})
		case "DEFAULT":
			if i+1 < len(rest) {
				v := rest[i+1]
				col.Default = &v
				i++
			}
		case "REFERENCES":
			refStr := strings.Join(rest[i+1:], " ")
			refTable, refCols := parseTableAndColumns(refStr)
			t.Constraints = append(t.Constraints, Constraint{
				Kind: "FOREIGN KEY", Columns: []string{name}, RefTable: refTable, RefColumns: refCols,
			})
			i = len(rest)
		case "CHECK":
			// CHECK(...) inline on a column is not recorded; its
			// parenthesized body is the next token and matches no case.
		}
	}
	col.Nullable = !containsNotNull(rest)
	if col.PK {
		col.Nullable = false
	}
	t.Columns = append(t.Columns, col)
	return nil
}

func containsNotNull(tokens []string) bool {
	for i := 0; i+1 < len(tokens); i++ {
		if strings.ToUpper(tokens[i]) == "NOT" && strings.ToUpper(tokens[i+1]) == "NULL" {
			return true
		}
	}
	return false
}

// consumeType greedily takes leading type-name tokens (handling the
// common multi-word PostgreSQL type names) plus an optional
// parenthesized precision/scale, returning the remaining tokens as
// column constraints.
func consumeType(tokens []string) (typeTokens []string, rest []string) {
	multiWord := map[string][]string{
		"double":    {"precision"},
		"character": {"varying"},
		"time":      {"with", "time", "zone"},
		"timestamp": {"with", "time", "zone"},
	}
	if len(tokens) == 0 {
		return nil, nil
	}
	first := tokens[0]
	typeTokens = append(typeTokens, first)
	consumed := 1

	lower := strings.ToLower(first)
	if extra, ok := multiWord[lower]; ok {
		for _, word := range extra {
			if consumed < len(tokens) && strings.EqualFold(tokens[consumed], word) {
				typeTokens = append(typeTokens, tokens[consumed])
				consumed++
			} else {
				break
			}
		}
	}
	// A parenthesized precision/scale directly appended to the type
	// name (e.g. "varchar(255)") is already part of tokens[0] from the
	// tokenizer; a space-separated one (e.g. "numeric (10, 2)") is
	// folded in here.
	if consumed < len(tokens) && strings.HasPrefix(tokens[consumed], "(") {
		typeTokens = append(typeTokens, tokens[consumed])
		consumed++
	}
	return typeTokens, tokens[consumed:]
}

// tokenize splits a column/constraint definition into words, keeping
// parenthesized groups (e.g. "varchar(255)", "DEFAULT now()") as single
// tokens so downstream parsing doesn't need to re-track depth.
func tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	depth := 0
	inQuote := false

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for _, r := range s {
		switch {
		case r == '\'' && !inQuote:
			inQuote = true
			cur.WriteRune(r)
		case r == '\'' && inQuote:
			inQuote = false
			cur.WriteRune(r)
		case inQuote:
			cur.WriteRune(r)
		case r == '(':
			depth++
			cur.WriteRune(r)
		case r == ')':
			if depth > 0 {
				depth--
			}
			cur.WriteRune(r)
		case (r == ' ' || r == '\t' || r == '\n') && depth == 0:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

func parseCreateIndex(stmt string, tables map[string]*Table) error {
	upper := strings.ToUpper(stmt)
	unique := strings.HasPrefix(upper, "CREATE UNIQUE INDEX")

	onIdx := strings.Index(upper, " ON ")
	if onIdx < 0 {
		return errors.Newf("CREATE INDEX missing ON clause")
	}
	head := strings.TrimSpace(stmt[:onIdx])
	var name string
	fields := strings.Fields(head)
	if len(fields) > 0 {
		name = fields[len(fields)-1]
	}

	rest := strings.TrimSpace(stmt[onIdx+len(" ON "):])
	parenIdx := strings.IndexRune(rest, '(')
	if parenIdx < 0 {
		return errors.Newf("CREATE INDEX missing column list")
	}
	tableName := strings.TrimSpace(rest[:parenIdx])
	cols := parenColumnList(rest[parenIdx:])

	t, ok := tables[tableName]
	if !ok {
		return errors.Newf("CREATE INDEX on unknown table %s", tableName)
	}
	t.Indexes = append(t.Indexes, Index{Name: name, Columns: cols, Unique: unique})
	return nil
}
