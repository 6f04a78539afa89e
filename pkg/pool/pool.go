// Package pool implements the worker pool (C8): one goroutine per
// worker, a bounded channel carrying produced QueryRecords downstream
// for backpressure, batching between stop-flag polls, and cooperative
// cancellation via a single atomic stop flag.
package pool

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/sqlforge-labs/rqg/pkg/dsl"
	"github.com/sqlforge-labs/rqg/pkg/grammar"
	"github.com/sqlforge-labs/rqg/pkg/partition"
	"github.com/sqlforge-labs/rqg/pkg/rng"
	"github.com/sqlforge-labs/rqg/pkg/rqgerr"
	"github.com/sqlforge-labs/rqg/pkg/schema"
	"github.com/sqlforge-labs/rqg/pkg/uniqueness"
)

// QueryRecord is one produced query, carrying enough identity for the
// checkpoint watermark and the reporter to do their jobs without
// re-deriving anything from the text.
type QueryRecord struct {
	Text        string
	Fingerprint uniqueness.Fingerprint
	WorkerID    int
	GlobalIndex uint64
	// Collision is true if every retry still came back duplicate and
	// the query was passed through anyway (spec.md §4.6).
	Collision bool
}

// DefaultBatchSize is the default B of spec.md §4.8: workers produce
// in batches of this size between stop-flag polls and checkpoint
// writes.
const DefaultBatchSize = 1000

// DefaultUniquenessRetries is K from spec.md §4.6: the number of
// fresh re-expansions a producer attempts after a duplicate before
// giving up and passing the query through as a counted collision.
const DefaultUniquenessRetries = 4

// Config controls one Pool run.
type Config struct {
	Grammar    *grammar.Grammar
	EntryRule  string
	Schema     *schema.View
	MasterSeed uint64
	Limits     dsl.Limits
	BatchSize  int

	// Filter is optional; when set, every generated query is checked
	// for uniqueness and retried up to UniquenessRetries times before
	// being passed through as a collision. A nil Filter disables
	// uniqueness tracking entirely (every record is emitted as-is).
	Filter            *uniqueness.RotatingBloomFilter
	UniquenessRetries int

	// Ranges is the per-worker index assignment, typically produced by
	// partition.Plan or partition.ResumeRanges.
	Ranges []partition.Range

	// OnBatch is invoked once per produced batch with that worker's
	// id and the highest global index completed in the batch, letting
	// the caller advance a checkpoint watermark without a second pass
	// over the records.
	OnBatch func(workerID int, lastIndex uint64)

	// Logger receives one line per completed batch, tagged with
	// worker_id and global_index. Defaults to slog.Default().
	Logger *slog.Logger
}

// Pool runs one goroutine per worker range, feeding a single bounded
// output channel.
type Pool struct {
	cfg  Config
	stop atomic.Bool
}

// New creates a Pool. BatchSize and UniquenessRetries default to
// DefaultBatchSize/DefaultUniquenessRetries if unset.
func New(cfg Config) *Pool {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.UniquenessRetries <= 0 {
		cfg.UniquenessRetries = DefaultUniquenessRetries
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pool{cfg: cfg}
}

// Stop raises the cooperative stop flag. Workers observe it at the top
// of their loop and at every channel send, so workers exit promptly
// without losing already-produced records in the channel buffer.
func (p *Pool) Stop() {
	p.stop.Store(true)
}

// Stopped reports whether Stop has been called.
func (p *Pool) Stopped() bool {
	return p.stop.Load()
}

// Run launches one goroutine per configured range and streams every
// produced QueryRecord onto the returned channel, closing it once
// every worker has finished or the pool was stopped. The channel is
// bounded at cfg.BatchSize so a slow consumer applies backpressure
// instead of letting producers race ahead and allocate unboundedly.
//
// Run returns at once. The returned wait function blocks until every
// worker goroutine returns. The first worker error cancels the rest via
// ctx and is returned by wait; a Stop()-triggered exit is not an error.
func (p *Pool) Run(ctx context.Context) (<-chan QueryRecord, func() error) {
	out := make(chan QueryRecord, p.cfg.BatchSize)
	group, gctx := errgroup.WithContext(ctx)

	for _, r := range p.cfg.Ranges {
		r := r
		group.Go(func() error {
			return p.runWorker(gctx, r, out)
		})
	}

	done := make(chan struct{})
	go func() {
		group.Wait()
		close(out)
		close(done)
	}()

	wait := func() error {
		<-done
		return group.Wait()
	}
	return out, wait
}

// runWorker expands one QueryRecord per index in r, in batches of
// cfg.BatchSize, polling the stop flag and ctx at the top of the loop
// and before every blocking channel send.
func (p *Pool) runWorker(ctx context.Context, r partition.Range, out chan<- QueryRecord) error {
	dctx := dsl.NewContext(rng.NewStream(1), p.cfg.Schema, p.cfg.Grammar, p.cfg.Limits)

	batchCount := 0
	var lastIndex uint64
	haveLast := false

	for i := r.Start; i < r.End(); i++ {
		if p.Stopped() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		seed := partition.Seed(p.cfg.MasterSeed, r.Worker, i)
		dctx.RNG = rng.NewStream(seed)

		rec, err := p.generateOne(dctx, r.Worker, i)
		switch {
		case err != nil && errors.Is(err, rqgerr.ErrExpansion):
			p.cfg.Logger.Warn("lambda expansion error, skipping query", "worker_id", r.Worker, "global_index", i, "err", err)
		case err != nil:
			return err
		default:
			if p.Stopped() {
				return nil
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastIndex = i
		haveLast = true
		batchCount++
		if batchCount >= p.cfg.BatchSize {
			p.cfg.Logger.Debug("batch complete", "worker_id", r.Worker, "global_index", lastIndex)
			if p.cfg.OnBatch != nil && haveLast {
				p.cfg.OnBatch(r.Worker, lastIndex)
			}
			batchCount = 0
			if p.Stopped() {
				return nil
			}
		}
	}

	if haveLast && batchCount > 0 && p.cfg.OnBatch != nil {
		p.cfg.OnBatch(r.Worker, lastIndex)
	}
	return nil
}

// generateOne expands the rule bound to dctx.RNG's current seed and,
// if a uniqueness filter is configured, retries with fresh expansions
// on the same stream (so replaying the same (seed, worker, index)
// reproduces the same retry sequence) up to UniquenessRetries times
// before passing the query through as a counted collision — the exact
// behavior spec.md §4.6 describes for producers that receive
// "duplicate".
func (p *Pool) generateOne(dctx *dsl.Context, worker int, index uint64) (QueryRecord, error) {
	var text string
	var fp uniqueness.Fingerprint
	collision := false

	attempts := 1
	if p.cfg.Filter != nil {
		attempts += p.cfg.UniquenessRetries
	}

	for attempt := 0; attempt < attempts; attempt++ {
		dctx.Reset()
		out, err := p.cfg.Grammar.Generate(p.cfg.EntryRule, dctx)
		if err != nil {
			return QueryRecord{}, err
		}
		text = out
		if p.cfg.Filter == nil {
			break
		}
		fp = uniqueness.Fingerprint128(out)
		if p.cfg.Filter.CheckAndAdd(fp) {
			collision = false
			break
		}
		collision = true
	}

	return QueryRecord{
		Text:        text,
		Fingerprint: fp,
		WorkerID:    worker,
		GlobalIndex: index,
		Collision:   collision,
	}, nil
}
