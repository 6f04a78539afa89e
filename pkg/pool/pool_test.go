package pool

import (
	"context"
	"sort"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/sqlforge-labs/rqg/pkg/dsl"
	"github.com/sqlforge-labs/rqg/pkg/grammar"
	"github.com/sqlforge-labs/rqg/pkg/partition"
	"github.com/sqlforge-labs/rqg/pkg/schema"
	"github.com/sqlforge-labs/rqg/pkg/uniqueness"
)

func numberGrammar(t *testing.T) *grammar.Grammar {
	t.Helper()
	g := grammar.New("t", "query")
	g.Rule("query", dsl.Number{Lo: 0, Hi: 1_000_000})
	require.NoError(t, g.Freeze(10))
	return g
}

func TestPoolProducesOneRecordPerIndex(t *testing.T) {
	g := numberGrammar(t)
	ranges := partition.Plan(20, 4)

	p := New(Config{
		Grammar:    g,
		EntryRule:  "query",
		Schema:     schema.Empty(),
		MasterSeed: 7,
		Limits:     dsl.Limits{MaxDepth: 10, RepeatCap: 10},
		Ranges:     ranges,
		BatchSize:  3,
	})

	out, wait := p.Run(context.Background())
	var indices []uint64
	for rec := range out {
		indices = append(indices, rec.GlobalIndex)
	}
	require.NoError(t, wait())

	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	require.Len(t, indices, 20)
	for i, idx := range indices {
		require.Equal(t, uint64(i), idx)
	}
}

// P2: the record produced for a given (worker, index) pair depends
// only on the master seed and that pair, not on how work was batched.
func TestPoolRecordsDeterministicAcrossBatchSizes(t *testing.T) {
	run := func(batchSize int) map[uint64]string {
		g := numberGrammar(t)
		ranges := partition.Plan(30, 3)
		p := New(Config{
			Grammar:    g,
			EntryRule:  "query",
			Schema:     schema.Empty(),
			MasterSeed: 99,
			Limits:     dsl.Limits{MaxDepth: 10, RepeatCap: 10},
			Ranges:     ranges,
			BatchSize:  batchSize,
		})
		out, wait := p.Run(context.Background())
		got := map[uint64]string{}
		for rec := range out {
			got[rec.GlobalIndex] = rec.Text
		}
		require.NoError(t, wait())
		return got
	}

	a := run(1)
	b := run(1000)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("batching must not change the (index -> text) mapping (-batch=1 +batch=1000):\n%s", diff)
	}
}

func TestPoolStopHaltsProduction(t *testing.T) {
	g := numberGrammar(t)
	ranges := partition.Plan(1_000_000, 1)

	p := New(Config{
		Grammar:    g,
		EntryRule:  "query",
		Schema:     schema.Empty(),
		MasterSeed: 1,
		Limits:     dsl.Limits{MaxDepth: 10, RepeatCap: 10},
		Ranges:     ranges,
		BatchSize:  10,
	})

	out, wait := p.Run(context.Background())
	count := 0
	for range out {
		count++
		if count == 25 {
			p.Stop()
		}
	}
	require.NoError(t, wait())
	require.Less(t, count, 1_000_000)
}

func TestPoolOnBatchReceivesWatermarks(t *testing.T) {
	g := numberGrammar(t)
	ranges := partition.Plan(10, 1)

	var watermarks []uint64
	p := New(Config{
		Grammar:    g,
		EntryRule:  "query",
		Schema:     schema.Empty(),
		MasterSeed: 1,
		Limits:     dsl.Limits{MaxDepth: 10, RepeatCap: 10},
		Ranges:     ranges,
		BatchSize:  3,
		OnBatch: func(worker int, lastIndex uint64) {
			watermarks = append(watermarks, lastIndex)
		},
	})

	out, wait := p.Run(context.Background())
	for range out {
	}
	require.NoError(t, wait())

	// Batches of 3 over 10 items: watermarks at 2, 5, 8, then a final
	// partial batch at 9.
	require.Equal(t, []uint64{2, 5, 8, 9}, watermarks)
}

func TestPoolWithUniquenessFilterMarksCollisions(t *testing.T) {
	g := grammar.New("t", "query")
	g.Rule("query", dsl.Literal("same-every-time"))
	require.NoError(t, g.Freeze(10))

	filter := uniqueness.New(uniqueness.Config{Capacity: 1000, TargetFPR: 0.001, RotateAt: 0.9})
	ranges := partition.Plan(5, 1)

	p := New(Config{
		Grammar:           g,
		EntryRule:         "query",
		Schema:            schema.Empty(),
		MasterSeed:        1,
		Limits:            dsl.Limits{MaxDepth: 10, RepeatCap: 10},
		Ranges:            ranges,
		BatchSize:         10,
		Filter:            filter,
		UniquenessRetries: 2,
	})

	out, wait := p.Run(context.Background())
	var records []QueryRecord
	for rec := range out {
		records = append(records, rec)
	}
	require.NoError(t, wait())
	require.Len(t, records, 5)

	require.False(t, records[0].Collision, "the first occurrence must be fresh")
	for _, rec := range records[1:] {
		require.True(t, rec.Collision, "every identical literal after the first must be a counted collision")
	}
}

// A Lambda expansion error is per-query, not fatal to the worker: the
// index that failed is skipped and the worker continues.
func TestPoolSkipsIndexOnLambdaExpansionErrorAndContinues(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	l := dsl.Lambda(func(ctx *dsl.Context) (string, error) {
		calls++
		if calls == 3 {
			return "", boom
		}
		return "ok", nil
	})
	g := grammar.New("t", "query")
	g.Rule("query", l)
	require.NoError(t, g.Freeze(10))

	ranges := partition.Plan(5, 1)
	p := New(Config{
		Grammar:    g,
		EntryRule:  "query",
		Schema:     schema.Empty(),
		MasterSeed: 1,
		Limits:     dsl.Limits{MaxDepth: 10, RepeatCap: 10},
		Ranges:     ranges,
		BatchSize:  10,
	})

	out, wait := p.Run(context.Background())
	var records []QueryRecord
	for rec := range out {
		records = append(records, rec)
	}
	require.NoError(t, wait(), "a single lambda expansion error must not fail the whole worker")
	require.Len(t, records, 4, "the failing index is skipped, every other index still produces a record")
}
