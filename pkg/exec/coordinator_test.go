package exec

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/sqlforge-labs/rqg/pkg/endpoint"
	"github.com/sqlforge-labs/rqg/pkg/pool"
	"github.com/sqlforge-labs/rqg/pkg/rqgerr"
)

// fakeEndpoint is a scripted, in-memory Endpoint for deterministic
// coordinator tests: no real connection, no real time.
type fakeEndpoint struct {
	mu       sync.Mutex
	execFn   func(sql string) endpoint.Result
	closed   bool
	execCall int
}

func (f *fakeEndpoint) Exec(_ context.Context, sql string) endpoint.Result {
	f.mu.Lock()
	f.execCall++
	f.mu.Unlock()
	return f.execFn(sql)
}
func (f *fakeEndpoint) Ping(context.Context) error { return nil }
func (f *fakeEndpoint) Close()                     { f.mu.Lock(); f.closed = true; f.mu.Unlock() }

func noSleepPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.Sleep = func(time.Duration) {}
	return p
}

func TestCoordinatorSubmitOK(t *testing.T) {
	dial := func(ctx context.Context, worker int) (endpoint.Endpoint, error) {
		return &fakeEndpoint{execFn: func(string) endpoint.Result { return endpoint.Result{Outcome: endpoint.OutcomeOK} }}, nil
	}
	c := New(Config{Dial: dial, Retry: noSleepPolicy()})
	defer c.Close()

	err := c.Submit(context.Background(), pool.QueryRecord{Text: "SELECT 1;", WorkerID: 0})
	require.NoError(t, err)

	total, _, _, _ := c.Stats().Snapshot()
	require.Equal(t, int64(1), total.OK)
}

func TestCoordinatorSubmitSQLErrorNotRetried(t *testing.T) {
	calls := 0
	dial := func(ctx context.Context, worker int) (endpoint.Endpoint, error) {
		return &fakeEndpoint{execFn: func(string) endpoint.Result {
			calls++
			return endpoint.Result{Outcome: endpoint.OutcomeSQLError, SQLStateCode: "42601", Err: errBoom}
		}}, nil
	}
	c := New(Config{Dial: dial, Retry: noSleepPolicy(), ContinueOnError: true})
	defer c.Close()

	err := c.Submit(context.Background(), pool.QueryRecord{Text: "SELECT 1;", WorkerID: 0})
	require.Error(t, err)
	require.True(t, errors.Is(err, rqgerr.ErrSQL))
	require.Equal(t, 1, calls, "a SQL error must not be retried")
}

func TestCoordinatorShutdownRequestedWhenContinueOnErrorFalse(t *testing.T) {
	dial := func(ctx context.Context, worker int) (endpoint.Endpoint, error) {
		return &fakeEndpoint{execFn: func(string) endpoint.Result {
			return endpoint.Result{Outcome: endpoint.OutcomeSQLError, SQLStateCode: "42601", Err: errBoom}
		}}, nil
	}
	c := New(Config{Dial: dial, Retry: noSleepPolicy(), ContinueOnError: false})
	defer c.Close()

	_ = c.Submit(context.Background(), pool.QueryRecord{Text: "SELECT 1;", WorkerID: 0})
	select {
	case <-c.ShutdownRequested():
	default:
		t.Fatal("expected shutdown to be requested")
	}
}

func TestCoordinatorReconnectsOnConnError(t *testing.T) {
	var dialCount int32
	dial := func(ctx context.Context, worker int) (endpoint.Endpoint, error) {
		n := atomic.AddInt32(&dialCount, 1)
		return &fakeEndpoint{execFn: func(string) endpoint.Result {
			if n < 3 {
				return endpoint.Result{Outcome: endpoint.OutcomeConnError, Err: errBoom}
			}
			return endpoint.Result{Outcome: endpoint.OutcomeOK}
		}}, nil
	}
	c := New(Config{Dial: dial, Retry: noSleepPolicy()})
	defer c.Close()

	err := c.Submit(context.Background(), pool.QueryRecord{Text: "SELECT 1;", WorkerID: 0})
	require.NoError(t, err)
	require.GreaterOrEqual(t, atomic.LoadInt32(&dialCount), int32(3))
}

func TestCoordinatorDDLRetriesSerializationFailure(t *testing.T) {
	attempt := 0
	dial := func(ctx context.Context, worker int) (endpoint.Endpoint, error) {
		return &fakeEndpoint{execFn: func(string) endpoint.Result {
			attempt++
			if attempt < 2 {
				return endpoint.Result{Outcome: endpoint.OutcomeSQLError, SQLStateCode: "40001", Err: errBoom}
			}
			return endpoint.Result{Outcome: endpoint.OutcomeOK}
		}}, nil
	}
	c := New(Config{Dial: dial, Retry: noSleepPolicy()})
	defer c.Close()

	err := c.Submit(context.Background(), pool.QueryRecord{Text: "CREATE TABLE t (id int);", WorkerID: 0})
	require.NoError(t, err)
	require.Equal(t, 2, attempt)
}

func TestCoordinatorSchemaReloadAfterSuccessfulDDL(t *testing.T) {
	dial := func(ctx context.Context, worker int) (endpoint.Endpoint, error) {
		return &fakeEndpoint{execFn: func(string) endpoint.Result { return endpoint.Result{Outcome: endpoint.OutcomeOK} }}, nil
	}
	reloaded := false
	var reloadedText string
	c := New(Config{Dial: dial, Retry: noSleepPolicy(), OnSchemaReload: func(_ context.Context, ddlText string) error {
		reloaded = true
		reloadedText = ddlText
		return nil
	}})
	defer c.Close()

	require.NoError(t, c.Submit(context.Background(), pool.QueryRecord{Text: "ALTER TABLE t ADD COLUMN x int;", WorkerID: 0}))
	require.True(t, reloaded)
	require.Equal(t, "ALTER TABLE t ADD COLUMN x int;", reloadedText)
}

// P4: no DML execution ever overlaps a DDL execution.
func TestCoordinatorDDLNeverOverlapsDML(t *testing.T) {
	var dmlActive int32
	var overlap atomic.Bool

	dial := func(ctx context.Context, worker int) (endpoint.Endpoint, error) {
		if worker == DDLWorkerID {
			return &fakeEndpoint{execFn: func(string) endpoint.Result {
				if atomic.LoadInt32(&dmlActive) > 0 {
					overlap.Store(true)
				}
				time.Sleep(2 * time.Millisecond)
				return endpoint.Result{Outcome: endpoint.OutcomeOK}
			}}, nil
		}
		return &fakeEndpoint{execFn: func(string) endpoint.Result {
			atomic.AddInt32(&dmlActive, 1)
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&dmlActive, -1)
			return endpoint.Result{Outcome: endpoint.OutcomeOK}
		}}, nil
	}

	c := New(Config{Dial: dial, Retry: noSleepPolicy()})
	defer c.Close()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				text := "SELECT 1;"
				if i == 10 && w == 0 {
					text = "CREATE TABLE t (id int);"
				}
				_ = c.Submit(context.Background(), pool.QueryRecord{Text: text, WorkerID: w})
			}
		}()
	}
	wg.Wait()

	require.False(t, overlap.Load(), "a DDL execution observed concurrent DML activity")
}

var errBoom = errBoomT{}

type errBoomT struct{}

func (errBoomT) Error() string { return "boom" }
