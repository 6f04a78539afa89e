package uniqueness

import "sync"

// defaultRotateThreshold is the load factor at which the current
// filter is sealed and a fresh one takes over as the write target.
// spec.md leaves the exact value open and suggests 0.5, which this
// package uses as its default.
const defaultRotateThreshold = 0.5

// RotatingBloomFilter maintains a sliding window of uniqueness over
// roughly 2x its per-filter capacity, trading a small, bounded chance
// of a forgotten fingerprint re-appearing as "fresh" for a hard memory
// ceiling — the explicit trade spec.md calls for at billion-scale
// cardinalities where a single never-rotated filter would grow without
// bound. Grounded on the reference implementation's RotatingBloomFilter,
// simplified from its N-deep archive list to the one-sealed-filter form
// spec.md describes ("after a second seal, the oldest is discarded").
type RotatingBloomFilter struct {
	capacity  uint64
	fpr       float64
	rotateAt  float64

	mu      sync.RWMutex
	current *BloomFilter
	sealed  *BloomFilter // nil until the first rotation
}

// Config bundles the tunables RunConfig's uniqueness.* options map to.
type Config struct {
	Capacity  uint64
	TargetFPR float64
	// RotateAt is the load factor, in (0, 1], at which the current
	// filter is sealed. Zero selects the default of 0.5.
	RotateAt float64
}

// New creates a RotatingBloomFilter sized per cfg.
func New(cfg Config) *RotatingBloomFilter {
	rotateAt := cfg.RotateAt
	if rotateAt <= 0 || rotateAt > 1 {
		rotateAt = defaultRotateThreshold
	}
	return &RotatingBloomFilter{
		capacity: cfg.Capacity,
		fpr:      cfg.TargetFPR,
		rotateAt: rotateAt,
		current:  NewBloomFilter(cfg.Capacity, cfg.TargetFPR),
	}
}

// CheckAndAdd is the C6 contract: it reports fresh unless fp has
// already been added to the sealed filter or the current one, with
// false positives bounded by the configured target FPR and never a
// false negative. A fingerprint already recorded in the sealed filter
// is reported as duplicate without being written into current — it is
// already accounted for in the union the filter represents.
func (r *RotatingBloomFilter) CheckAndAdd(fp Fingerprint) bool {
	r.mu.RLock()
	sealed, current := r.sealed, r.current
	r.mu.RUnlock()

	if sealed != nil && sealed.Contains(fp) {
		return false
	}

	fresh := current.CheckAndAdd(fp)
	if fresh && current.LoadFactor() >= r.rotateAt {
		r.rotate(current)
	}
	return fresh
}

// Contains reports whether fp might have been added, without adding
// it, by unioning both the current and sealed filter.
func (r *RotatingBloomFilter) Contains(fp Fingerprint) bool {
	r.mu.RLock()
	sealed, current := r.sealed, r.current
	r.mu.RUnlock()
	if sealed != nil && sealed.Contains(fp) {
		return true
	}
	return current.Contains(fp)
}

// LoadFactor reports the current write-target filter's load factor.
func (r *RotatingBloomFilter) LoadFactor() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.LoadFactor()
}

// rotate seals from and installs a fresh current filter, discarding
// whatever was previously sealed. from is compared against r.current
// under the lock so a rotation racing with another CheckAndAdd call
// that also observed the threshold doesn't double-rotate.
func (r *RotatingBloomFilter) rotate(from *BloomFilter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != from {
		return
	}
	r.sealed = r.current
	r.current = NewBloomFilter(r.capacity, r.fpr)
}
