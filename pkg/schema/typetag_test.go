package schema

import "testing"

func TestNormalizeType(t *testing.T) {
	cases := []struct {
		raw  string
		want TypeTag
	}{
		{"integer", TypeInteger},
		{"bigint", TypeInteger},
		{"BIGINT", TypeInteger},
		{"numeric", TypeNumeric},
		{"double precision", TypeNumeric},
		{"boolean", TypeBoolean},
		{"text", TypeString},
		{"character varying", TypeString},
		{"bytea", TypeBytes},
		{"timestamp with time zone", TypeTemporal},
		{"date", TypeTemporal},
		{"json", TypeJSON},
		{"jsonb", TypeJSON},
		{"uuid", TypeUUID},
		{"inet", TypeNetwork},
		{"int4range", TypeRange},
		{"integer[]", TypeArray},
		{"text[]", TypeArray},
		{"some_made_up_type", TypeOther},
	}
	for _, c := range cases {
		if got := NormalizeType(c.raw); got != c.want {
			t.Errorf("NormalizeType(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}
