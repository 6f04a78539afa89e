// Package rqg ties every component together into the one externally
// facing seam a host application calls: Run. There is no cmd/ binary —
// CLI argument parsing is explicitly out of scope (spec.md §1) — so
// RunConfig is built and populated by the caller directly.
package rqg

import (
	"fmt"
	"runtime"
	"time"

	"github.com/sqlforge-labs/rqg/pkg/dsl"
	"github.com/sqlforge-labs/rqg/pkg/grammar"
	"github.com/sqlforge-labs/rqg/pkg/pool"
	"github.com/sqlforge-labs/rqg/pkg/rqgerr"
)

// UniquenessMode selects the C6 strategy for a run.
type UniquenessMode string

const (
	UniquenessOff           UniquenessMode = "off"
	UniquenessProbabilistic UniquenessMode = "probabilistic"
)

// SchemaMode selects how the SchemaView (C5) is built.
type SchemaMode string

const (
	SchemaIntrospect SchemaMode = "introspect"
	SchemaDDLFile    SchemaMode = "ddl_file"
	SchemaNone       SchemaMode = "none"
)

// OutputSinkKind selects where generated query text is written,
// independent of the reporter's own progress/summary sink.
type OutputSinkKind string

const (
	OutputStdout OutputSinkKind = "stdout"
	OutputFile   OutputSinkKind = "file"
	OutputNone   OutputSinkKind = "none"
)

// QueryFixup is the optional post-expansion hook of spec.md §9: `string
// -> option<string>`. Returning ok == false drops the query (counted);
// the hook is stateless from the engine's perspective and must not
// block.
type QueryFixup func(query string) (fixed string, ok bool)

// RunConfig collects every option spec.md §6.2 names.
type RunConfig struct {
	// Grammar is constructed and frozen by the caller; Run calls
	// Freeze(RepeatCap) itself if it isn't frozen yet.
	Grammar   *grammar.Grammar
	EntryRule string // default "query"

	Count    *uint64 // nil = unbounded, capped only by Duration/cancellation
	Duration time.Duration

	Workers   int // default runtime.NumCPU()
	BatchSize int // default pool.DefaultBatchSize

	Seed uint64 // required

	MaxDepth  int // dsl.Limits.MaxDepth
	RepeatCap int // dsl.Limits.RepeatCap, also Grammar.Freeze's bound

	UniquenessMode     UniquenessMode
	UniquenessFPR      float64
	UniquenessCapacity uint64

	// Driver selects the endpoint adapter: "pgx" (default) or "libpq".
	Driver string
	DSN    string // empty = dry-run generation only, no endpoint

	SchemaMode   SchemaMode
	SchemaSource string // DSN for introspect, file path for ddl_file

	OutputSink OutputSinkKind
	OutputPath string

	CheckpointPath  string
	CheckpointEvery int // batches between checkpoint saves; default 1

	ContinueOnError bool

	Fixup QueryFixup
}

// Validate accumulates every configuration violation rather than
// stopping at the first one, matching the teacher's own validation
// style (see rqgerr.ConfigError).
func (c *RunConfig) Validate() error {
	var violations []string

	if c.Grammar == nil {
		violations = append(violations, "grammar is required")
	}
	if c.Workers < 0 {
		violations = append(violations, "workers must be >= 0")
	}
	if c.BatchSize < 0 {
		violations = append(violations, "batch size must be >= 0")
	}
	if c.UniquenessMode == UniquenessProbabilistic {
		if c.UniquenessCapacity == 0 {
			violations = append(violations, "uniqueness.capacity is required when uniqueness.mode=probabilistic")
		}
		if c.UniquenessFPR <= 0 || c.UniquenessFPR >= 1 {
			violations = append(violations, "uniqueness.fpr must be in (0, 1)")
		}
	}
	switch c.SchemaMode {
	case SchemaIntrospect, SchemaDDLFile:
		if c.SchemaSource == "" {
			violations = append(violations, fmt.Sprintf("schema.source is required for schema.mode=%s", c.SchemaMode))
		}
	case SchemaNone, "":
	default:
		violations = append(violations, fmt.Sprintf("unrecognized schema.mode %q", c.SchemaMode))
	}
	switch c.OutputSink {
	case OutputFile:
		if c.OutputPath == "" {
			violations = append(violations, "output.path is required for output.sink=file")
		}
	case OutputStdout, OutputNone, "":
	default:
		violations = append(violations, fmt.Sprintf("unrecognized output.sink %q", c.OutputSink))
	}
	if c.Driver != "" && c.Driver != "pgx" && c.Driver != "libpq" {
		violations = append(violations, fmt.Sprintf("unrecognized driver %q", c.Driver))
	}

	if len(violations) > 0 {
		return &rqgerr.ConfigError{Violations: violations}
	}
	return nil
}

// normalized returns a copy of c with every default applied.
func (c RunConfig) normalized() RunConfig {
	if c.EntryRule == "" {
		c.EntryRule = "query"
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = pool.DefaultBatchSize
	}
	if c.Driver == "" {
		c.Driver = "pgx"
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = 1
	}
	if c.SchemaMode == "" {
		c.SchemaMode = SchemaNone
	}
	if c.OutputSink == "" {
		c.OutputSink = OutputNone
	}
	return c
}

func (c RunConfig) limits() dsl.Limits {
	return dsl.Limits{MaxDepth: c.MaxDepth, RepeatCap: c.RepeatCap}
}
