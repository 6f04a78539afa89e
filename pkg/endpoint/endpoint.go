// Package endpoint implements the endpoint adapter (C10): the narrow
// capability set the execution coordinator drives a SQL target
// through — connect, exec, ping, close — without ever depending on a
// specific driver itself.
package endpoint

import "context"

// Outcome classifies the result of one Exec call.
type Outcome int

const (
	// OutcomeOK means the statement executed without error.
	OutcomeOK Outcome = iota
	// OutcomeSQLError means the endpoint rejected a well-formed
	// statement (syntax, constraint, type, ...). Not retried.
	OutcomeSQLError
	// OutcomeConnError means the transport itself failed (connection
	// reset, unreachable host, ...). Retried with backoff by the
	// caller.
	OutcomeConnError
)

// Result is what Exec returns: the classification plus whatever detail
// is available (a SQLSTATE-shaped code for SQL errors, the raw error
// for everything else).
type Result struct {
	Outcome      Outcome
	SQLStateCode string // populated for OutcomeSQLError when the driver exposes it
	Err          error
	RowsAffected int64
}

// Endpoint is the capability set every adapter implements. The
// execution coordinator (C9) talks only to this interface, never to
// pgx or lib/pq directly, so a non-Postgres adapter (e.g. a future
// Cassandra-style one) plugs in without coordinator changes.
type Endpoint interface {
	// Exec runs one statement and classifies its outcome. It has no
	// separate Go error return: a SQL-level rejection is
	// OutcomeSQLError and a transport failure OutcomeConnError, each
	// carrying the driver error in the Result.
	Exec(ctx context.Context, sql string) Result
	// Ping verifies the connection is alive, for reconnect probing.
	Ping(ctx context.Context) error
	// Close releases all resources. Exec after Close is undefined.
	Close()
}
