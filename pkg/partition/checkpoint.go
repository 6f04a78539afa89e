package partition

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/sqlforge-labs/rqg/pkg/rqgerr"
)

// Checkpoint is the JSON wire format of spec.md §6.3: enough state to
// resume a run at the same (seed, worker, index) assignment it would
// have had if it had never stopped. RunID is an addition beyond the
// named fields: a stable identifier for this run's checkpoint lineage,
// useful for correlating a resumed run's logs/metrics with the
// original one.
type Checkpoint struct {
	RunID             uuid.UUID `json:"run_id"`
	MasterSeed        uint64    `json:"master_seed"`
	Total             *uint64   `json:"total"`
	Workers           int       `json:"workers"`
	Done              []int64   `json:"done"`
	StartedAt         time.Time `json:"started_at"`
	SchemaFingerprint string    `json:"schema_fingerprint"`
}

// New creates a fresh Checkpoint for a run about to start: every
// worker's "done" index starts at -1 (nothing completed), matching
// Range.Resume's convention that -1 means "start at the beginning".
func New(masterSeed uint64, total *uint64, workers int, schemaFingerprint string) *Checkpoint {
	done := make([]int64, workers)
	for i := range done {
		done[i] = -1
	}
	return &Checkpoint{
		RunID:             uuid.New(),
		MasterSeed:        masterSeed,
		Total:             total,
		Workers:           workers,
		Done:              done,
		StartedAt:         time.Now().UTC(),
		SchemaFingerprint: schemaFingerprint,
	}
}

// MarkDone records that worker w has completed through global index i,
// advancing its watermark. It never moves a watermark backward: a
// stale or out-of-order call is silently ignored rather than
// corrupting progress already recorded.
func (c *Checkpoint) MarkDone(worker int, index uint64) {
	if worker < 0 || worker >= len(c.Done) {
		return
	}
	if int64(index) > c.Done[worker] {
		c.Done[worker] = int64(index)
	}
}

// Save writes c to path atomically: marshal, write to a temp file in
// the same directory, fsync, then rename over path. The same-directory
// temp file keeps the rename on one filesystem, so it's atomic at the
// OS level rather than a copy that could be observed half-written.
func (c *Checkpoint) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "marshal checkpoint")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return errors.Wrapf(err, "create checkpoint temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write checkpoint temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "sync checkpoint temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close checkpoint temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "rename checkpoint into place")
	}
	return nil
}

// Load reads and validates a Checkpoint from path. A structurally
// invalid or internally inconsistent file (e.g. len(Done) != Workers)
// is reported as a CheckpointError so the caller can map it to exit
// code 4 (spec.md §6.4) rather than silently starting over.
func Load(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read checkpoint")
	}
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrapf(rqgerr.ErrCheckpoint, "parse checkpoint: %v", err)
	}
	if c.Workers <= 0 || len(c.Done) != c.Workers {
		return nil, errors.Wrapf(rqgerr.ErrCheckpoint, "checkpoint has %d done entries for %d workers", len(c.Done), c.Workers)
	}
	return &c, nil
}

// ResumeRanges combines a fresh Plan with a loaded Checkpoint's done
// watermarks to produce the remaining work for each worker.
func ResumeRanges(c *Checkpoint) []Range {
	total := uint64(0)
	if c.Total != nil {
		total = *c.Total
	}
	plan := Plan(total, c.Workers)
	out := make([]Range, len(plan))
	for i, r := range plan {
		done := int64(-1)
		if i < len(c.Done) {
			done = c.Done[i]
		}
		out[i] = r.Resume(done)
	}
	return out
}
