// Package exec implements the execution coordinator (C9): it drives
// QueryRecords against an Endpoint, enforces the DDL barrier so no DML
// ever overlaps a running DDL statement, retries connection failures
// with capped backoff, and aggregates statistics.
package exec

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/sqlforge-labs/rqg/pkg/endpoint"
	"github.com/sqlforge-labs/rqg/pkg/pool"
	"github.com/sqlforge-labs/rqg/pkg/rqgerr"
)

// retryableDDLClasses are the SQLSTATE classes ADDED-3 #3 retries
// within the DDL barrier before giving up.
var retryableDDLClasses = map[rqgerr.SQLErrorClass]bool{
	rqgerr.SQLClassSerialization: true,
}

// Dialer (re)connects a fresh Endpoint for worker, used both for the
// initial per-worker connection and for transparent reconnect after a
// ConnError.
type Dialer func(ctx context.Context, worker int) (endpoint.Endpoint, error)

// Config controls one Coordinator.
type Config struct {
	// Dial opens a worker's (or, for worker == DDLWorkerID, the
	// dedicated DDL connection's) Endpoint.
	Dial Dialer
	// Classify maps a driver-reported SQLSTATE-shaped code to the
	// coarser rqgerr.SQLErrorClass the Reporter buckets by.
	Classify func(code string) rqgerr.SQLErrorClass
	Retry    RetryPolicy
	// ContinueOnError, when false, signals Shutdown() once a terminal
	// SqlError is observed (spec.md §7 outcome 5).
	ContinueOnError bool
	// OnSchemaReload is invoked with the DDL text that just executed
	// successfully, so the caller can rebuild the SchemaView (spec.md
	// §4.9) — by re-introspecting, or by re-parsing a DDL file plus
	// every DDL statement executed so far in ddl_file mode.
	OnSchemaReload func(ctx context.Context, ddlText string) error
	// Logger receives reconnect/retry/shutdown events with worker_id
	// log tags. Defaults to slog.Default().
	Logger *slog.Logger
}

// DDLWorkerID is the sentinel worker id passed to Dial for the
// dedicated DDL connection.
const DDLWorkerID = -1

// Coordinator serializes DDL against DML via a reader/writer barrier:
// DML executions hold the read side (many concurrent), a DDL
// statement takes the write side (exclusive, and only after every
// in-flight DML has released its read lock) — sync.RWMutex already
// implements exactly the Running/Draining/DDL/Resuming state machine
// spec.md §4.9 describes, without hand-rolling a state machine on top
// of it.
type Coordinator struct {
	cfg   Config
	stats *Stats

	barrier sync.RWMutex

	mu        sync.Mutex
	endpoints map[int]endpoint.Endpoint
	ddlConn   endpoint.Endpoint

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// New creates a Coordinator. cfg.Retry defaults to DefaultRetryPolicy
// if zero-valued (MaxAttempts == 0).
func New(cfg Config) *Coordinator {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Classify == nil {
		cfg.Classify = defaultClassify
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{
		cfg:       cfg,
		stats:     NewStats(),
		endpoints: map[int]endpoint.Endpoint{},
		shutdown:  make(chan struct{}),
	}
}

// Stats returns the coordinator's live statistics aggregator.
func (c *Coordinator) Stats() *Stats { return c.stats }

// ShutdownRequested reports whether ContinueOnError == false and a
// terminal SqlError has been observed.
func (c *Coordinator) ShutdownRequested() <-chan struct{} {
	return c.shutdown
}

func (c *Coordinator) requestShutdown() {
	c.shutdownOnce.Do(func() {
		c.cfg.Logger.Warn("shutdown requested: terminal sql error with continue_on_error=false")
		close(c.shutdown)
	})
}

// Close closes every connection the coordinator opened.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.endpoints {
		e.Close()
	}
	if c.ddlConn != nil {
		c.ddlConn.Close()
	}
}

func (c *Coordinator) endpointFor(ctx context.Context, worker int) (endpoint.Endpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if worker == DDLWorkerID {
		if c.ddlConn != nil {
			return c.ddlConn, nil
		}
		e, err := c.cfg.Dial(ctx, worker)
		if err != nil {
			return nil, err
		}
		c.ddlConn = e
		return e, nil
	}
	if e, ok := c.endpoints[worker]; ok {
		return e, nil
	}
	e, err := c.cfg.Dial(ctx, worker)
	if err != nil {
		return nil, err
	}
	c.endpoints[worker] = e
	return e, nil
}

func (c *Coordinator) reconnect(ctx context.Context, worker int) (endpoint.Endpoint, error) {
	c.mu.Lock()
	if worker == DDLWorkerID {
		if c.ddlConn != nil {
			c.ddlConn.Close()
			c.ddlConn = nil
		}
	} else if e, ok := c.endpoints[worker]; ok {
		e.Close()
		delete(c.endpoints, worker)
	}
	c.mu.Unlock()
	return c.endpointFor(ctx, worker)
}

// Submit executes one QueryRecord. DDL-classified text takes the DDL
// barrier (draining in-flight DML first); everything else runs under
// the shared DML side of the barrier against that worker's own
// connection. Submit does not record generation stats itself — the
// caller records those off the pool's output directly, since
// generation happens whether or not a Coordinator exists (dry runs
// have none).
func (c *Coordinator) Submit(ctx context.Context, rec pool.QueryRecord) error {
	if IsDDL(rec.Text) {
		return c.submitDDL(ctx, rec)
	}
	return c.submitDML(ctx, rec)
}

func (c *Coordinator) submitDML(ctx context.Context, rec pool.QueryRecord) error {
	c.barrier.RLock()
	defer c.barrier.RUnlock()

	start := time.Now()
	res, err := c.execWithReconnect(ctx, rec.WorkerID, rec.Text)
	elapsed := time.Since(start)
	bytes := int64(len(rec.Text))

	if err != nil {
		c.stats.RecordSubmission(rec.WorkerID, bytes, elapsed, "C", rqgerr.SQLClassOther, false, true)
		return errors.Wrapf(rqgerr.ErrConn, "exhausted retries for worker %d: %v", rec.WorkerID, err)
	}

	switch res.Outcome {
	case endpoint.OutcomeOK:
		c.stats.RecordSubmission(rec.WorkerID, bytes, elapsed, ".", "", true, false)
		return nil
	case endpoint.OutcomeSQLError:
		class := c.cfg.Classify(res.SQLStateCode)
		c.stats.RecordSubmission(rec.WorkerID, bytes, elapsed, symbolForClass(class), class, false, false)
		if !c.cfg.ContinueOnError {
			c.requestShutdown()
		}
		return rqgerr.NewSQLError(res.Err, class)
	default:
		c.stats.RecordSubmission(rec.WorkerID, bytes, elapsed, "C", rqgerr.SQLClassOther, false, true)
		return errors.Wrapf(rqgerr.ErrConn, "transport failure: %v", res.Err)
	}
}

// execWithReconnect runs sql against worker's connection, transparently
// reconnecting with capped exponential backoff on a ConnError outcome,
// per spec.md §4.9. It gives up after RetryPolicy.MaxAttempts and
// returns the last error.
func (c *Coordinator) execWithReconnect(ctx context.Context, worker int, sql string) (endpoint.Result, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.Retry.maxAttempts(); attempt++ {
		e, err := c.endpointFor(ctx, worker)
		if err != nil {
			lastErr = err
		} else {
			res := e.Exec(ctx, sql)
			if res.Outcome != endpoint.OutcomeConnError {
				return res, nil
			}
			lastErr = res.Err
		}

		if attempt == c.cfg.Retry.maxAttempts()-1 {
			break
		}
		c.cfg.Logger.Warn("connection error, reconnecting", "worker_id", worker, "attempt", attempt+1, "err", lastErr)
		c.cfg.Retry.sleeper()(c.cfg.Retry.connBackoff(attempt))
		if _, err := c.reconnect(ctx, worker); err != nil {
			lastErr = err
		}
	}
	return endpoint.Result{}, lastErr
}

// submitDDL takes the exclusive side of the barrier, draining every
// in-flight DML before the DDL statement runs on the dedicated
// connection. A successful statement triggers the schema reload while
// the barrier is still held; the barrier is released on return.
func (c *Coordinator) submitDDL(ctx context.Context, rec pool.QueryRecord) error {
	c.barrier.Lock()
	defer c.barrier.Unlock()

	start := time.Now()
	res, err := c.execDDLWithRetry(ctx, rec.Text)
	elapsed := time.Since(start)
	bytes := int64(len(rec.Text))

	if err != nil {
		c.stats.RecordSubmission(rec.WorkerID, bytes, elapsed, "C", rqgerr.SQLClassOther, false, true)
		return errors.Wrapf(rqgerr.ErrConn, "ddl connection failure: %v", err)
	}

	switch res.Outcome {
	case endpoint.OutcomeOK:
		c.stats.RecordSubmission(rec.WorkerID, bytes, elapsed, ".", "", true, false)
		if c.cfg.OnSchemaReload != nil {
			if err := c.cfg.OnSchemaReload(ctx, rec.Text); err != nil {
				return errors.Wrapf(rqgerr.ErrSchema, "schema reload after ddl: %v", err)
			}
			c.cfg.Logger.Info("schema reloaded after ddl", "worker_id", rec.WorkerID)
		}
		return nil
	case endpoint.OutcomeSQLError:
		class := c.cfg.Classify(res.SQLStateCode)
		c.stats.RecordSubmission(rec.WorkerID, bytes, elapsed, symbolForClass(class), class, false, false)
		if !c.cfg.ContinueOnError {
			c.requestShutdown()
		}
		return rqgerr.NewSQLError(res.Err, class)
	default:
		c.stats.RecordSubmission(rec.WorkerID, bytes, elapsed, "C", rqgerr.SQLClassOther, false, true)
		return errors.Wrapf(rqgerr.ErrConn, "ddl transport failure: %v", res.Err)
	}
}

// execDDLWithRetry retries a DDL statement that fails with a
// retryable SQLSTATE class (serialization failure) with linear
// backoff, making at most DDLRetryAttempts attempts in total (the first
// one included), before returning it as
// terminal — ADDED-3 #3, extending the connection-failure retry
// policy to this one additional case.
func (c *Coordinator) execDDLWithRetry(ctx context.Context, sql string) (endpoint.Result, error) {
	e, err := c.endpointFor(ctx, DDLWorkerID)
	if err != nil {
		return endpoint.Result{}, err
	}

	var res endpoint.Result
	for attempt := 0; attempt < c.cfg.Retry.ddlRetryAttempts(); attempt++ {
		res = e.Exec(ctx, sql)
		if res.Outcome == endpoint.OutcomeConnError {
			if e, err = c.reconnect(ctx, DDLWorkerID); err != nil {
				return endpoint.Result{}, err
			}
			continue
		}
		if res.Outcome != endpoint.OutcomeSQLError {
			return res, nil
		}
		class := c.cfg.Classify(res.SQLStateCode)
		if !retryableDDLClasses[class] {
			return res, nil
		}
		c.cfg.Logger.Warn("retryable ddl failure, retrying", "attempt", attempt+1, "class", class)
		c.cfg.Retry.sleeper()(time.Duration(attempt+1) * c.cfg.Retry.ddlRetryDelay())
	}
	return res, nil
}

func symbolForClass(class rqgerr.SQLErrorClass) string {
	if class == rqgerr.SQLClassSyntax {
		return "S"
	}
	return "e"
}

// defaultClassify maps common PostgreSQL SQLSTATE class prefixes to
// rqgerr.SQLErrorClass when the caller doesn't supply a finer-grained
// classifier.
func defaultClassify(code string) rqgerr.SQLErrorClass {
	switch code {
	case "42501":
		return rqgerr.SQLClassInsufficientPriv
	case "42704":
		return rqgerr.SQLClassUndefined
	}
	if len(code) < 2 {
		return rqgerr.SQLClassOther
	}
	switch code[:2] {
	case "42":
		return rqgerr.SQLClassSyntax
	case "23":
		return rqgerr.SQLClassConstraint
	case "22":
		return rqgerr.SQLClassType
	case "40":
		return rqgerr.SQLClassSerialization
	default:
		return rqgerr.SQLClassOther
	}
}
