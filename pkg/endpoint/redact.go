package endpoint

import "github.com/cockroachdb/redact"

// RedactDSN returns a redacted stand-in for dsn: the whole string,
// scheme included, is marked unsafe and replaced by the redaction
// placeholder, so a DSN's embedded password never reaches a log line
// or an error message surfaced by DialPgx/DialLibPQ. Connection errors
// from both drivers can otherwise echo the DSN verbatim (e.g. a
// malformed-URL parse error), so callers should use this in place of
// the raw dsn in any log or wrapped error.
func RedactDSN(dsn string) string {
	return redact.Sprint(dsn).Redact().StripMarkers()
}
