package rqg

import (
	"context"
	"database/sql"
	"log/slog"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	_ "github.com/lib/pq"

	"github.com/sqlforge-labs/rqg/pkg/endpoint"
	"github.com/sqlforge-labs/rqg/pkg/exec"
	"github.com/sqlforge-labs/rqg/pkg/partition"
	"github.com/sqlforge-labs/rqg/pkg/pool"
	"github.com/sqlforge-labs/rqg/pkg/report"
	"github.com/sqlforge-labs/rqg/pkg/rqgerr"
	"github.com/sqlforge-labs/rqg/pkg/schema"
	"github.com/sqlforge-labs/rqg/pkg/uniqueness"
)

// Summary is what Run returns on any outcome, successful or not, so a
// caller always has the final counters even when Err is non-nil.
type Summary struct {
	Stats          exec.WorkerStats
	FixupDropped   int64
	SchemaWarnings []schema.Warning
	Err            error
}

// ExitCode maps an error returned by Run to spec.md §6.4's exit codes.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, rqgerr.ErrCheckpoint):
		return 4
	case errors.Is(err, rqgerr.ErrCancelled):
		return 3
	case errors.Is(err, rqgerr.ErrConn):
		return 2
	default:
		return 1
	}
}

// Run drives one end-to-end generation (and, if cfg.DSN is set,
// execution) pass: it freezes the grammar, builds the schema view,
// loads or creates a checkpoint, launches the worker pool, executes
// every produced query through the coordinator (or, in dry-run mode,
// just writes it to the output sink), and reports progress until the
// pool drains or ctx is cancelled.
func Run(ctx context.Context, cfg RunConfig) Summary {
	if err := cfg.Validate(); err != nil {
		return Summary{Err: err}
	}
	cfg = cfg.normalized()
	logger := slog.Default().With(slog.String("component", "rqg"))

	if err := cfg.Grammar.Freeze(cfg.RepeatCap); err != nil {
		return Summary{Err: err}
	}

	view, warnings, baseDDL, err := buildSchema(ctx, cfg)
	if err != nil {
		return Summary{Err: err}
	}
	fingerprint := view.Fingerprint()

	checkpoint, ranges, err := loadOrCreateCheckpoint(cfg, fingerprint)
	if err != nil {
		return Summary{Err: err}
	}

	var filter *uniqueness.RotatingBloomFilter
	if cfg.UniquenessMode == UniquenessProbabilistic {
		filter = uniqueness.New(uniqueness.Config{
			Capacity:  cfg.UniquenessCapacity,
			TargetFPR: cfg.UniquenessFPR,
		})
	}

	sink, err := newOutputSink(cfg)
	if err != nil {
		return Summary{Err: err}
	}
	defer sink.close()

	var coordinator *exec.Coordinator
	if cfg.DSN != "" {
		execCfg := exec.Config{
			Dial:            dialerFor(cfg),
			ContinueOnError: cfg.ContinueOnError,
			Logger:          logger,
		}
		switch cfg.SchemaMode {
		case SchemaIntrospect:
			execCfg.OnSchemaReload = func(ctx context.Context, _ string) error {
				db := mustOpenIntrospectDB(cfg.SchemaSource)
				defer db.Close()
				reloaded, err := schema.LoadFromDB(ctx, db)
				if err != nil {
					return err
				}
				view = reloaded
				return nil
			}
		case SchemaDDLFile:
			accumulatedDDL := baseDDL
			execCfg.OnSchemaReload = func(_ context.Context, ddlText string) error {
				accumulatedDDL += "\n" + ddlText
				reloaded, _, err := schema.ParseDDL(accumulatedDDL)
				if err != nil {
					return err
				}
				view = reloaded
				return nil
			}
		}
		coordinator = exec.New(execCfg)
		defer coordinator.Close()
	}

	stats := exec.NewStats()
	if coordinator != nil {
		stats = coordinator.Stats()
	}

	reporter := report.New(report.Config{
		Stats:  stats,
		Sink:   report.WriterSink{W: os.Stdout},
		Logger: logger,
		LoadFactor: func() float64 {
			if filter == nil {
				return 0
			}
			return filter.LoadFactor()
		},
	})
	go reporter.Run()
	defer reporter.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.Duration > 0 {
		timer := time.AfterFunc(cfg.Duration, cancel)
		defer timer.Stop()
	}

	var batchesDone atomic.Int64
	p := pool.New(pool.Config{
		Grammar:           cfg.Grammar,
		EntryRule:         cfg.EntryRule,
		Schema:            view,
		MasterSeed:        cfg.Seed,
		Limits:            cfg.limits(),
		BatchSize:         cfg.BatchSize,
		Filter:            filter,
		UniquenessRetries: pool.DefaultUniquenessRetries,
		Ranges:            ranges,
		Logger:            logger,
		OnBatch: func(workerID int, lastIndex uint64) {
			if checkpoint == nil {
				return
			}
			checkpoint.MarkDone(workerID, lastIndex)
			if cfg.CheckpointPath != "" && batchesDone.Add(1)%int64(cfg.CheckpointEvery) == 0 {
				if err := checkpoint.Save(cfg.CheckpointPath); err != nil {
					logger.Warn("checkpoint save failed", "err", err)
				}
			}
		},
	})

	out, wait := p.Run(runCtx)

	var fixupDropped int64
	var submitErr error

	if coordinator != nil {
		go func() {
			<-coordinator.ShutdownRequested()
			p.Stop()
			cancel()
		}()
	}

	cancelled := runCtx.Done()
consume:
	for {
		select {
		case rec, more := <-out:
			if !more {
				break consume
			}
			text := rec.Text
			stats.RecordGenerated(rec.WorkerID, rec.Text, rec.Collision)
			if cfg.Fixup != nil {
				fixed, ok := cfg.Fixup(text)
				if !ok {
					fixupDropped++
					continue
				}
				text = fixed
			}
			if err := sink.writeQuery(text); err != nil {
				logger.Warn("output sink write failed", "err", err)
			}
			if coordinator != nil {
				recWithTags := rec
				recWithTags.Text = text
				queryCtx := logtags.AddTag(runCtx, "worker_id", rec.WorkerID)
				queryCtx = logtags.AddTag(queryCtx, "global_index", rec.GlobalIndex)
				if err := coordinator.Submit(queryCtx, recWithTags); err != nil {
					if errors.Is(err, rqgerr.ErrConn) {
						submitErr = err
					} else if errors.Is(err, rqgerr.ErrSchema) {
						logger.Warn("schema reload failed, continuing with an empty schema view", "err", err)
						view = schema.Empty()
					}
				}
			}
		case <-cancelled:
			p.Stop()
			cancelled = nil // already handled; avoid spinning on a closed channel
		}
	}

	if err := wait(); err != nil && submitErr == nil {
		submitErr = err
	}

	final, _, _, _ := stats.Snapshot()
	summary := Summary{Stats: final, FixupDropped: fixupDropped, SchemaWarnings: warnings}

	switch {
	case submitErr != nil:
		summary.Err = submitErr
	case ctx.Err() != nil:
		summary.Err = errors.Wrapf(rqgerr.ErrCancelled, "run cancelled: %v", ctx.Err())
	}
	return summary
}

// buildSchema returns the initial SchemaView, any parse warnings, and
// — for schema.mode=ddl_file only — the raw DDL source text, which
// Run keeps around as the base text OnSchemaReload re-parses against
// after each successful mutating DDL statement (ADDED-3 #4).
func buildSchema(ctx context.Context, cfg RunConfig) (*schema.View, []schema.Warning, string, error) {
	switch cfg.SchemaMode {
	case SchemaIntrospect:
		db := mustOpenIntrospectDB(cfg.SchemaSource)
		defer db.Close()
		view, err := schema.LoadFromDB(ctx, db)
		if err != nil {
			return nil, nil, "", errors.Wrapf(rqgerr.ErrSchema, "introspect schema: %v", err)
		}
		return view, nil, "", nil
	case SchemaDDLFile:
		data, err := os.ReadFile(cfg.SchemaSource)
		if err != nil {
			return nil, nil, "", errors.Wrapf(rqgerr.ErrSchema, "read ddl file: %v", err)
		}
		view, warnings, err := schema.ParseDDL(string(data))
		if err != nil {
			return nil, nil, "", errors.Wrapf(rqgerr.ErrSchema, "parse ddl file: %v", err)
		}
		return view, warnings, string(data), nil
	default:
		return schema.Empty(), nil, "", nil
	}
}

// mustOpenIntrospectDB opens a *sql.DB purely for schema introspection,
// independent of whichever endpoint.Endpoint adapter the run's traffic
// uses — lib/pq's database/sql driver satisfies schema.Queryer
// directly, so introspection never needs to know about the pgx pool.
func mustOpenIntrospectDB(dsn string) *sql.DB {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		// sql.Open only fails on a malformed driver name, which is a
		// static program error, not a runtime condition to recover from.
		panic(err)
	}
	return db
}

func dialerFor(cfg RunConfig) exec.Dialer {
	if cfg.Driver == "libpq" {
		return func(ctx context.Context, worker int) (endpoint.Endpoint, error) {
			return endpoint.DialLibPQ(ctx, cfg.DSN)
		}
	}
	return func(ctx context.Context, worker int) (endpoint.Endpoint, error) {
		return endpoint.DialPgx(ctx, cfg.DSN)
	}
}

func loadOrCreateCheckpoint(cfg RunConfig, fingerprint string) (*partition.Checkpoint, []partition.Range, error) {
	total := cfg.Count
	if total == nil {
		unbounded := uint64(math.MaxInt64)
		total = &unbounded
	}

	if cfg.CheckpointPath != "" {
		if _, err := os.Stat(cfg.CheckpointPath); err == nil {
			cp, err := partition.Load(cfg.CheckpointPath)
			if err != nil {
				return nil, nil, err
			}
			if cp.SchemaFingerprint != fingerprint {
				return nil, nil, errors.Wrapf(rqgerr.ErrCheckpoint, "schema fingerprint mismatch: checkpoint was taken against a different schema")
			}
			return cp, partition.ResumeRanges(cp), nil
		}
	}

	cp := partition.New(cfg.Seed, total, cfg.Workers, fingerprint)
	return cp, partition.ResumeRanges(cp), nil
}
