package endpoint

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/lib/pq"
)

// LibPQEndpoint is the secondary, database/sql-shaped adapter, for
// hosts that want a *sql.DB rather than pgx's own pool type. It caps
// the pool at one open connection, matching §5's "one connection per
// worker" — this adapter is meant to be constructed once per worker,
// not shared.
type LibPQEndpoint struct {
	db *sql.DB
}

// DialLibPQ opens and pings dsn via lib/pq, the driver the teacher's
// own sqlsmith-go command imports for exactly this sql.Open("postgres", ...)
// shape.
func DialLibPQ(ctx context.Context, dsn string) (*LibPQEndpoint, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Newf("open database %s: %s", RedactDSN(dsn), RedactDSN(err.Error()))
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Newf("ping database %s: %s", RedactDSN(dsn), RedactDSN(err.Error()))
	}
	return &LibPQEndpoint{db: db}, nil
}

// Exec implements Endpoint.
func (e *LibPQEndpoint) Exec(ctx context.Context, sqlText string) Result {
	res, err := e.db.ExecContext(ctx, sqlText)
	if err == nil {
		affected, _ := res.RowsAffected()
		return Result{Outcome: OutcomeOK, RowsAffected: affected}
	}
	return classifyLibPQError(err)
}

// Ping implements Endpoint.
func (e *LibPQEndpoint) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// Close implements Endpoint.
func (e *LibPQEndpoint) Close() {
	e.db.Close()
}

// classifyLibPQError mirrors classifyPgxError for lib/pq's own error
// type: a *pq.Error carries a SQLSTATE-shaped Code, everything else is
// a transport-level failure.
func classifyLibPQError(err error) Result {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return Result{Outcome: OutcomeSQLError, SQLStateCode: string(pqErr.Code), Err: err}
	}
	return Result{Outcome: OutcomeConnError, Err: err}
}
