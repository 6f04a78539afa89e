// Package partition implements the work partitioner (C7): mapping a
// total query budget across a fixed number of workers as contiguous,
// deterministic index ranges, plus the checkpoint file format that
// lets a killed run resume from where it left off.
package partition

import (
	"github.com/sqlforge-labs/rqg/pkg/rng"
)

// Range is the contiguous, half-open index range [Start, Start+Len)
// one worker owns.
type Range struct {
	Worker int
	Start  uint64
	Len    uint64
}

// End returns the exclusive upper bound of the range.
func (r Range) End() uint64 {
	return r.Start + r.Len
}

// Plan assigns total indices [0, total) across workers many workers as
// contiguous ranges of size floor(total/workers), with the remainder
// distributed one each to the first (total mod workers) workers — the
// exact distribution spec.md §4.7 specifies, chosen so that no worker
// ever gets more than one extra index than any other.
func Plan(total uint64, workers int) []Range {
	if workers <= 0 {
		workers = 1
	}
	base := total / uint64(workers)
	rem := total % uint64(workers)

	ranges := make([]Range, workers)
	var start uint64
	for w := 0; w < workers; w++ {
		length := base
		if uint64(w) < rem {
			length++
		}
		ranges[w] = Range{Worker: w, Start: start, Len: length}
		start += length
	}
	return ranges
}

// Seed derives the per-query seed for worker w's global index i from
// the run's master seed, via the splittable derivation in pkg/rng.
// Because DeriveSeed is a pure function of its inputs, the same
// (masterSeed, w, i) triple always yields the same seed no matter how
// the total was partitioned across workers — the property P2 depends
// on.
func Seed(masterSeed uint64, worker int, index uint64) uint64 {
	return rng.DeriveSeed(masterSeed, uint64(worker), index)
}

// Resume narrows a Range to the remaining, not-yet-produced suffix
// given the last completed index recorded for that worker in a
// checkpoint ("done[w]"). A doneIndex of -1 (nothing completed yet)
// leaves the range unchanged. doneIndex must be expressed relative to
// the whole run's global index space, i.e. within [r.Start-1, r.End()).
func (r Range) Resume(doneIndex int64) Range {
	next := r.Start
	if doneIndex >= 0 {
		next = uint64(doneIndex) + 1
	}
	if next <= r.Start {
		return r
	}
	if next >= r.End() {
		return Range{Worker: r.Worker, Start: r.End(), Len: 0}
	}
	return Range{Worker: r.Worker, Start: next, Len: r.End() - next}
}
