package exec

import "strings"

// ddlKeywords always push the coordinator into the DDL barrier when a
// statement starts with one, per spec.md §4.9. VACUUM is handled
// separately: only VACUUM ... FULL needs the barrier (a plain VACUUM
// doesn't take the kind of lock that conflicts with concurrent DML).
var ddlKeywords = map[string]bool{
	"CREATE":   true,
	"ALTER":    true,
	"DROP":     true,
	"TRUNCATE": true,
	"COMMENT":  true,
	"GRANT":    true,
	"REVOKE":   true,
	"REINDEX":  true,
	"CLUSTER":  true,
}

// IsDDL reports whether text, after skipping leading whitespace and
// "--"/"/* */" comments, starts with a keyword that requires the DDL
// barrier.
func IsDDL(text string) bool {
	first, rest := firstToken(stripLeading(text))
	switch strings.ToUpper(first) {
	case "":
		return false
	case "VACUUM":
		return containsToken(rest, "FULL")
	default:
		return ddlKeywords[strings.ToUpper(first)]
	}
}

// stripLeading removes leading whitespace and comments ("--" to end of
// line, "/* ... */") so a commented-out or indented DDL statement is
// still recognized.
func stripLeading(s string) string {
	for {
		trimmed := strings.TrimLeft(s, " \t\r\n")
		switch {
		case strings.HasPrefix(trimmed, "--"):
			if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
				s = trimmed[nl+1:]
				continue
			}
			return ""
		case strings.HasPrefix(trimmed, "/*"):
			if end := strings.Index(trimmed, "*/"); end >= 0 {
				s = trimmed[end+2:]
				continue
			}
			return ""
		default:
			return trimmed
		}
	}
}

// firstToken splits s into its first whitespace-delimited token and
// the remainder.
func firstToken(s string) (first, rest string) {
	s = strings.TrimLeft(s, " \t\r\n")
	i := strings.IndexAny(s, " \t\r\n")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}

// containsToken reports whether s contains word as a case-insensitive
// whitespace-delimited token.
func containsToken(s, word string) bool {
	for _, tok := range strings.Fields(s) {
		if strings.EqualFold(tok, word) {
			return true
		}
	}
	return false
}
