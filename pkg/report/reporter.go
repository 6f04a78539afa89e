// Package report implements the reporter (C11): a prometheus metrics
// registry fed from the execution coordinator's statistics, a periodic
// snapshot printer, and a final end-of-run summary — the three output
// surfaces spec.md §4.11 describes.
package report

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sqlforge-labs/rqg/pkg/exec"
	"github.com/sqlforge-labs/rqg/pkg/rqgerr"
)

// DefaultSnapshotInterval is the default period between periodic
// progress snapshots (spec.md §4.11: "default 1s").
const DefaultSnapshotInterval = time.Second

// Sink receives each periodic snapshot line and the final summary.
// Implementations must not block the caller for long; Reporter calls
// Write synchronously from its own goroutine.
type Sink interface {
	Write(line string)
}

// WriterSink adapts an io.Writer (stdout, a file, ...) into a Sink.
type WriterSink struct {
	W io.Writer
}

func (s WriterSink) Write(line string) {
	fmt.Fprintln(s.W, line)
}

// FuncSink adapts a plain callback into a Sink, for callers who want
// structured access to each line instead of text.
type FuncSink func(line string)

func (f FuncSink) Write(line string) { f(line) }

// metrics bundles the prometheus collectors the Reporter exports.
// Registered against a private registry (never the global default) so
// multiple Reporters — e.g. one per test — never collide.
type metrics struct {
	registry *prometheus.Registry

	generated    prometheus.Counter
	submitted    prometheus.Counter
	ok           prometheus.Counter
	connErrors   prometheus.Counter
	collisions   prometheus.Counter
	genDuration  prometheus.Histogram
	errorsByKind *prometheus.CounterVec
	uniqueness   prometheus.Gauge
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	m := &metrics{
		registry: reg,
		generated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rqg", Name: "queries_generated_total",
			Help: "Total queries generated across all workers.",
		}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rqg", Name: "queries_submitted_total",
			Help: "Total queries submitted to the endpoint.",
		}),
		ok: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rqg", Name: "queries_ok_total",
			Help: "Total queries that executed without error.",
		}),
		connErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rqg", Name: "connection_errors_total",
			Help: "Total transport-level failures observed.",
		}),
		collisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rqg", Name: "uniqueness_collisions_total",
			Help: "Total queries passed through after exhausting uniqueness retries.",
		}),
		genDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rqg", Name: "query_submit_seconds",
			Help:    "Wall time spent executing one submitted query.",
			Buckets: prometheus.DefBuckets,
		}),
		errorsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rqg", Name: "sql_errors_total",
			Help: "SQL errors by normalized class.",
		}, []string{"class"}),
		uniqueness: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rqg", Name: "uniqueness_filter_load_factor",
			Help: "Current load factor of the active uniqueness filter.",
		}),
	}
	reg.MustRegister(m.generated, m.submitted, m.ok, m.connErrors, m.collisions, m.genDuration, m.errorsByKind, m.uniqueness)
	return m
}

// Registry exposes the private prometheus.Registry so a caller can
// mount it behind promhttp.HandlerFor on its own HTTP server; Reporter
// itself never opens a listening socket.
func (m *metrics) Registry() *prometheus.Registry { return m.registry }

// LoadFactorFunc reports the uniqueness filter's current load factor;
// Reporter polls it on every snapshot tick. nil disables the gauge.
type LoadFactorFunc func() float64

// Config controls one Reporter.
type Config struct {
	Stats            *exec.Stats
	LoadFactor       LoadFactorFunc
	SnapshotInterval time.Duration
	Sink             Sink
	Logger           *slog.Logger
}

// Reporter periodically snapshots a Stats aggregator into a Sink and a
// prometheus registry, and prints a final summary on Stop.
//
// prometheus.Counter only grows, but exec.Stats.Snapshot returns
// cumulative totals rather than deltas, so Reporter tracks the last
// reported cumulative values itself and Add()s the difference each
// tick.
type Reporter struct {
	cfg     Config
	metrics *metrics

	mu           sync.Mutex
	prevTime     time.Time
	prevGen      int64
	prevSub      int64
	prevOK       int64
	prevConnErrs int64
	prevColl     int64
	prevWallTime time.Duration
	prevByKind   map[rqgerr.SQLErrorClass]int64

	stop chan struct{}
	done chan struct{}
}

// New creates a Reporter. SnapshotInterval defaults to
// DefaultSnapshotInterval; Sink defaults to a no-op sink; Logger
// defaults to slog.Default().
func New(cfg Config) *Reporter {
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = DefaultSnapshotInterval
	}
	if cfg.Sink == nil {
		cfg.Sink = FuncSink(func(string) {})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Reporter{
		cfg:        cfg,
		metrics:    newMetrics(),
		prevByKind: map[rqgerr.SQLErrorClass]int64{},
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Registry returns the reporter's private prometheus registry.
func (r *Reporter) Registry() *prometheus.Registry { return r.metrics.Registry() }

// Run drives the periodic snapshot loop until Stop is called. It
// blocks; call it from its own goroutine.
func (r *Reporter) Run() {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.snapshot()
		case <-r.stop:
			r.snapshot()
			r.summarize()
			return
		}
	}
}

// Stop ends the Run loop after one final snapshot and summary, and
// blocks until it has finished.
func (r *Reporter) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Reporter) snapshot() {
	total, _, _, symbols := r.cfg.Stats.Snapshot()

	r.mu.Lock()
	r.metrics.generated.Add(float64(total.Generated - r.prevGen))
	r.metrics.submitted.Add(float64(total.Submitted - r.prevSub))
	r.metrics.ok.Add(float64(total.OK - r.prevOK))
	r.metrics.connErrors.Add(float64(total.ConnErrors - r.prevConnErrs))
	r.metrics.collisions.Add(float64(total.DuplicateCollisions - r.prevColl))
	for class, n := range total.ErrorByKind {
		r.metrics.errorsByKind.WithLabelValues(string(class)).Add(float64(n - r.prevByKind[class]))
		r.prevByKind[class] = n
	}
	if dSub := total.Submitted - r.prevSub; dSub > 0 {
		avg := (total.WallTime - r.prevWallTime) / time.Duration(dSub)
		r.metrics.genDuration.Observe(avg.Seconds())
	}
	r.prevWallTime = total.WallTime

	now := time.Now()
	elapsed := now.Sub(r.prevTime)
	qps := 0.0
	if !r.prevTime.IsZero() && elapsed > 0 {
		qps = float64(total.OK-r.prevOK) / elapsed.Seconds()
	}
	r.prevTime = now
	r.prevGen, r.prevSub, r.prevOK, r.prevConnErrs, r.prevColl =
		total.Generated, total.Submitted, total.OK, total.ConnErrors, total.DuplicateCollisions
	r.mu.Unlock()

	var loadFactor float64
	if r.cfg.LoadFactor != nil {
		loadFactor = r.cfg.LoadFactor()
		r.metrics.uniqueness.Set(loadFactor)
	}

	line := fmt.Sprintf("generated=%d submitted=%d ok=%d qps=%.1f conn_errors=%d collisions=%d load_factor=%.3f symbols=%s",
		total.Generated, total.Submitted, total.OK, qps, total.ConnErrors, total.DuplicateCollisions, loadFactor, formatSymbols(symbols))
	r.cfg.Sink.Write(line)
	r.cfg.Logger.Info("rqg progress", "generated", total.Generated, "submitted", total.Submitted,
		"ok", total.OK, "qps", qps, "conn_errors", total.ConnErrors, "collisions", total.DuplicateCollisions)
}

func (r *Reporter) summarize() {
	total, perWorker, shapes, _ := r.cfg.Stats.Snapshot()

	line := fmt.Sprintf("final: generated=%d submitted=%d ok=%d conn_errors=%d collisions=%d distinct_shapes=%d workers=%d",
		total.Generated, total.Submitted, total.OK, total.ConnErrors, total.DuplicateCollisions, len(shapes), len(perWorker))
	r.cfg.Sink.Write(line)

	classes := make([]string, 0, len(total.ErrorByKind))
	for class := range total.ErrorByKind {
		classes = append(classes, string(class))
	}
	sort.Strings(classes)
	for _, class := range classes {
		r.cfg.Sink.Write(fmt.Sprintf("  %s: %d", class, total.ErrorByKind[rqgerr.SQLErrorClass(class)]))
	}
	r.cfg.Logger.Info("rqg run complete", "generated", total.Generated, "ok", total.OK,
		"conn_errors", total.ConnErrors, "collisions", total.DuplicateCollisions, "distinct_shapes", len(shapes))
}

func formatSymbols(symbols map[string]int64) string {
	keys := make([]string, 0, len(symbols))
	for k := range symbols {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for _, k := range keys {
		out += fmt.Sprintf("%s:%d ", k, symbols[k])
	}
	return out
}
