package grammar

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/sqlforge-labs/rqg/pkg/dsl"
	"github.com/sqlforge-labs/rqg/pkg/rng"
	"github.com/sqlforge-labs/rqg/pkg/rqgerr"
	"github.com/sqlforge-labs/rqg/pkg/schema"
)

func newCtx(seed uint64, g *Grammar, maxDepth, repeatCap int) *dsl.Context {
	return dsl.NewContext(rng.NewStream(seed), schema.Empty(), g, dsl.Limits{MaxDepth: maxDepth, RepeatCap: repeatCap})
}

func TestFreezeRejectsUnknownEntry(t *testing.T) {
	g := New("t", "query")
	err := g.Freeze(10)
	require.Error(t, err)
	require.True(t, errors.Is(err, rqgerr.ErrGrammar))
}

func TestFreezeRejectsUnresolvedRuleRef(t *testing.T) {
	g := New("t", "query")
	g.Rule("query", dsl.RuleRef{Name: "missing"})
	err := g.Freeze(10)
	require.Error(t, err)
	require.True(t, errors.Is(err, rqgerr.ErrGrammar))
}

func TestFreezeRejectsInvalidChoice(t *testing.T) {
	g := New("t", "query")
	g.Rule("query", dsl.NewChoice(nil))
	require.Error(t, g.Freeze(10))
}

func TestFreezeRejectsRepeatOverCap(t *testing.T) {
	g := New("t", "query")
	g.Rule("query", &dsl.Repeat{Child: dsl.Digit{}, Min: 0, Max: 100, Sep: ""})
	require.Error(t, g.Freeze(10))
}

func TestGenerateTemplateScenario(t *testing.T) {
	g := New("t", "query")
	g.Rule("query", dsl.NewTemplate("SELECT {col} FROM {tab};", nil))
	g.Rule("col", dsl.Literal("id"))
	g.Rule("tab", dsl.Literal("t"))
	require.NoError(t, g.Freeze(10))

	for _, seed := range []uint64{1, 2, 99, 123456} {
		ctx := newCtx(seed, g, 10, 10)
		out, err := g.Generate("", ctx)
		require.NoError(t, err)
		require.Equal(t, "SELECT id FROM t;", out)
	}
}

func TestGenerateRepeatScenario(t *testing.T) {
	g := New("t", "query")
	g.Rule("query", &dsl.Repeat{Child: dsl.Digit{}, Min: 3, Max: 3, Sep: ","})
	require.NoError(t, g.Freeze(10))

	ctx := newCtx(42, g, 10, 10)
	out, err := g.Generate("", ctx)
	require.NoError(t, err)
	require.Len(t, out, 5) // "d,d,d"
}

func TestGenerateWeightedChoiceConverges(t *testing.T) {
	g := New("t", "query")
	g.Rule("query", dsl.NewChoice([]dsl.Element{dsl.Literal("A"), dsl.Literal("B")}, 3, 1))
	require.NoError(t, g.Freeze(10))

	ctx := newCtx(1, g, 10, 10)
	counts := map[string]int{}
	const n = 40000
	for i := 0; i < n; i++ {
		out, err := g.Generate("", ctx)
		require.NoError(t, err)
		counts[out]++
	}
	require.InDelta(t, 0.75, float64(counts["A"])/n, 0.02)
	require.InDelta(t, 0.25, float64(counts["B"])/n, 0.02)
}

// A grammar with only a directly self-recursive rule and no base case
// must terminate via the depth cap, emitting "" rather than recursing
// forever.
func TestSelfRecursionWithoutBaseCaseHitsDepthCap(t *testing.T) {
	g := New("t", "query")
	g.Rule("query", dsl.RuleRef{Name: "query"})
	require.NoError(t, g.Freeze(10))

	ctx := newCtx(1, g, 5, 10)
	out, err := g.Generate("", ctx)
	require.NoError(t, err)
	require.Equal(t, "", out)
}

// A recursive rule with a Choice offering both a recursive branch and
// a terminating base case must stay bounded by the depth cap. The
// recursive branch stays eligible at the cap, so a reference past the
// cap expands to "" inside the parentheses; the nesting never grows
// past the cap.
func TestRecursiveRuleWithBaseCaseTerminatesAtDepthCap(t *testing.T) {
	g := New("t", "query")
	g.Rule("query", dsl.NewChoice([]dsl.Element{
		dsl.NewTemplate("({nested})", map[string]dsl.Element{"nested": dsl.RuleRef{Name: "query"}}),
		dsl.Literal("leaf"),
	}))
	require.NoError(t, g.Freeze(10))

	for _, seed := range []uint64{1, 7, 13, 999, 424242} {
		ctx := newCtx(seed, g, 3, 10)
		out, err := g.Generate("", ctx)
		require.NoError(t, err)
		// Bounded: depth is capped, so the nesting of "(" pairs is small
		// regardless of which branch the RNG happens to pick.
		require.LessOrEqual(t, len(out), len("((leaf))")+2)
	}
}

func TestRuleReplacementBeforeFreeze(t *testing.T) {
	g := New("t", "query")
	g.Rule("query", dsl.Literal("first"))
	g.Rule("query", dsl.Literal("second"))
	require.NoError(t, g.Freeze(10))

	ctx := newCtx(1, g, 10, 10)
	out, err := g.Generate("", ctx)
	require.NoError(t, err)
	require.Equal(t, "second", out)
}

func TestRulePanicsAfterFreeze(t *testing.T) {
	g := New("t", "query")
	g.Rule("query", dsl.Literal("x"))
	require.NoError(t, g.Freeze(10))

	require.Panics(t, func() { g.Rule("query", dsl.Literal("y")) })
}
