package endpoint

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxEndpoint is the primary adapter: a pooled, context-aware
// connection to a PostgreSQL wire-protocol v3 endpoint. Grounded on
// the pgxpool.New/Ping dialing pattern used elsewhere in the pack.
type PgxEndpoint struct {
	pool *pgxpool.Pool
}

// DialPgx connects and pings dsn, returning a ready PgxEndpoint.
func DialPgx(ctx context.Context, dsn string) (*PgxEndpoint, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Newf("connect to database %s: %s", RedactDSN(dsn), RedactDSN(err.Error()))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Newf("ping database %s: %s", RedactDSN(dsn), RedactDSN(err.Error()))
	}
	return &PgxEndpoint{pool: pool}, nil
}

// Exec implements Endpoint.
func (e *PgxEndpoint) Exec(ctx context.Context, sql string) Result {
	tag, err := e.pool.Exec(ctx, sql)
	if err == nil {
		return Result{Outcome: OutcomeOK, RowsAffected: tag.RowsAffected()}
	}
	return classifyPgxError(err)
}

// Ping implements Endpoint.
func (e *PgxEndpoint) Ping(ctx context.Context) error {
	return e.pool.Ping(ctx)
}

// Close implements Endpoint.
func (e *PgxEndpoint) Close() {
	e.pool.Close()
}

// classifyPgxError distinguishes a SQLSTATE-bearing *pgconn.PgError
// (the endpoint rejected the statement) from every other pgx error
// (connection reset, context deadline, pool exhaustion, ...), which is
// treated as a transport failure eligible for reconnect-with-backoff.
func classifyPgxError(err error) Result {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return Result{Outcome: OutcomeSQLError, SQLStateCode: pgErr.Code, Err: err}
	}
	return Result{Outcome: OutcomeConnError, Err: err}
}
