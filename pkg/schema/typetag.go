package schema

import "strings"

// NormalizeType maps a raw PostgreSQL-compatible type name (as it
// appears in information_schema.columns.data_type or in a DDL column
// definition) onto the small TypeTag enumeration of spec.md §4.5.
// Unrecognized types normalize to TypeOther rather than failing — the
// engine only needs a coarse category for schema-aware generation, not
// full type-system fidelity.
func NormalizeType(raw string) TypeTag {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.TrimSuffix(t, "[]") // array suffix handled below

	switch {
	case strings.HasSuffix(strings.ToLower(strings.TrimSpace(raw)), "[]"),
		strings.HasPrefix(t, "array"):
		return TypeArray
	}

	// Strip a trailing precision/scale, e.g. "varchar(64)" -> "varchar",
	// "numeric(12, 2)" -> "numeric", so DDL-sourced type names compare
	// the same as information_schema's bare data_type strings.
	if paren := strings.IndexByte(t, '('); paren >= 0 {
		t = strings.TrimSpace(t[:paren])
	}

	switch t {
	case "smallint", "int2", "integer", "int", "int4", "bigint", "int8", "serial", "bigserial", "smallserial":
		return TypeInteger
	case "numeric", "decimal", "real", "float4", "double precision", "float8", "money":
		return TypeNumeric
	case "boolean", "bool":
		return TypeBoolean
	case "text", "varchar", "character varying", "character", "char", "bpchar", "name", "citext":
		return TypeString
	case "bytea":
		return TypeBytes
	case "date", "time", "timetz", "time without time zone", "time with time zone",
		"timestamp", "timestamptz", "timestamp without time zone", "timestamp with time zone", "interval":
		return TypeTemporal
	case "json", "jsonb":
		return TypeJSON
	case "uuid":
		return TypeUUID
	case "inet", "cidr", "macaddr", "macaddr8":
		return TypeNetwork
	case "int4range", "int8range", "numrange", "tsrange", "tstzrange", "daterange":
		return TypeRange
	default:
		return TypeOther
	}
}
