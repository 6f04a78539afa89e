package exec

import (
	"regexp"
	"sync"
	"time"

	"github.com/sqlforge-labs/rqg/pkg/rqgerr"
)

// WorkerStats accumulates the counters spec.md §4.9 names, for one
// worker.
type WorkerStats struct {
	Generated           int64
	Submitted            int64
	OK                   int64
	DuplicateCollisions  int64
	BytesOut             int64
	WallTime             time.Duration
	ErrorByKind          map[rqgerr.SQLErrorClass]int64
	ConnErrors           int64
}

func newWorkerStats() *WorkerStats {
	return &WorkerStats{ErrorByKind: map[rqgerr.SQLErrorClass]int64{}}
}

// Stats aggregates WorkerStats across every worker, plus the two
// supplemented reporting features: a normalized-shape dedup count
// (ADDED-3 #1) and a compact per-outcome symbol tally (ADDED-3 #2).
type Stats struct {
	mu      sync.Mutex
	workers map[int]*WorkerStats

	shapes      map[string]int64
	symbolTally map[string]int64
}

// NewStats creates an empty Stats aggregator.
func NewStats() *Stats {
	return &Stats{
		workers:     map[int]*WorkerStats{},
		shapes:      map[string]int64{},
		symbolTally: map[string]int64{},
	}
}

func (s *Stats) worker(id int) *WorkerStats {
	w, ok := s.workers[id]
	if !ok {
		w = newWorkerStats()
		s.workers[id] = w
	}
	return w
}

// RecordGenerated counts one QueryRecord produced by the pool,
// independent of whether it goes on to be submitted anywhere (a dry
// run with no Coordinator still calls this for every record).
func (s *Stats) RecordGenerated(worker int, text string, collision bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.worker(worker)
	w.Generated++
	if collision {
		w.DuplicateCollisions++
	}
	shape := normalizeShape(text)
	s.shapes[shape]++
}

// RecordSubmission counts one execution attempt's outcome.
func (s *Stats) RecordSubmission(worker int, bytesOut int64, elapsed time.Duration, symbol string, class rqgerr.SQLErrorClass, ok, connErr bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.worker(worker)
	w.Submitted++
	w.BytesOut += bytesOut
	w.WallTime += elapsed
	s.symbolTally[symbol]++
	switch {
	case ok:
		w.OK++
	case connErr:
		w.ConnErrors++
	default:
		w.ErrorByKind[class]++
	}
}

// Snapshot returns a deep-enough copy of the aggregated totals and the
// per-worker breakdown, safe to read concurrently with further
// recording.
func (s *Stats) Snapshot() (total WorkerStats, perWorker map[int]WorkerStats, shapes map[string]int64, symbols map[string]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total.ErrorByKind = map[rqgerr.SQLErrorClass]int64{}
	perWorker = make(map[int]WorkerStats, len(s.workers))
	for id, w := range s.workers {
		total.Generated += w.Generated
		total.Submitted += w.Submitted
		total.OK += w.OK
		total.DuplicateCollisions += w.DuplicateCollisions
		total.BytesOut += w.BytesOut
		total.WallTime += w.WallTime
		total.ConnErrors += w.ConnErrors
		for class, n := range w.ErrorByKind {
			total.ErrorByKind[class] += n
		}

		cp := *w
		cp.ErrorByKind = make(map[rqgerr.SQLErrorClass]int64, len(w.ErrorByKind))
		for k, v := range w.ErrorByKind {
			cp.ErrorByKind[k] = v
		}
		perWorker[id] = cp
	}

	shapes = make(map[string]int64, len(s.shapes))
	for k, v := range s.shapes {
		shapes[k] = v
	}
	symbols = make(map[string]int64, len(s.symbolTally))
	for k, v := range s.symbolTally {
		symbols[k] = v
	}
	return total, perWorker, shapes, symbols
}

var (
	shapeNumberRe = regexp.MustCompile(`\b\d+\b`)
	shapeStringRe = regexp.MustCompile(`'[^']*'`)
)

// normalizeShape collapses a query's literals down to placeholders,
// purely for the observability metric of ADDED-3 #1 — never used to
// filter or deduplicate generation itself.
func normalizeShape(text string) string {
	shape := shapeStringRe.ReplaceAllString(text, "'#STR#'")
	shape = shapeNumberRe.ReplaceAllString(shape, "#NUM#")
	return shape
}
