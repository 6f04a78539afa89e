package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// schemaFingerprintNamespace is a fixed namespace UUID so that two
// processes computing a fingerprint for the same schema shape always
// derive the same UUID, the property a checkpoint's schema_fingerprint
// field (spec.md §6.3) depends on to detect a schema that changed out
// from under a resumed run.
var schemaFingerprintNamespace = uuid.MustParse("6f6e9a6a-34f1-4b8f-9e3a-9b9a6a9f0f1e")

// Fingerprint derives a deterministic UUID (v5, SHA-1 over a namespace)
// from the view's table and column shape: names, types, and
// nullability, in the same sorted order Tables/AllColumns already
// guarantee. Two views with identical shape always fingerprint
// identically regardless of map iteration order; any shape change
// changes the fingerprint.
func (v *View) Fingerprint() string {
	var b strings.Builder
	for _, t := range v.Tables() {
		fmt.Fprintf(&b, "table:%s\n", t.Name)
		cols := append([]Column(nil), t.Columns...)
		sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
		for _, c := range cols {
			fmt.Fprintf(&b, "  col:%s type=%s null=%t pk=%t\n", c.Name, c.Type, c.Nullable, c.PK)
		}
	}
	return uuid.NewSHA1(schemaFingerprintNamespace, []byte(b.String())).String()
}
