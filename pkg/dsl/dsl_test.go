package dsl

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/sqlforge-labs/rqg/pkg/rng"
	"github.com/sqlforge-labs/rqg/pkg/rqgerr"
	"github.com/sqlforge-labs/rqg/pkg/schema"
)

func newTestContext(seed uint64, view *schema.View, resolver RuleResolver) *Context {
	return NewContext(rng.NewStream(seed), view, resolver, Limits{MaxDepth: 20, RepeatCap: 20})
}

// mapResolver is a trivial RuleResolver over a plain map, used by tests
// that don't need a full Grammar.
type mapResolver map[string]Element

func (m mapResolver) Resolve(name string) (Element, bool) {
	e, ok := m[name]
	return e, ok
}

func TestLiteralExpand(t *testing.T) {
	ctx := newTestContext(1, schema.Empty(), nil)
	s, err := Literal("hello").Expand(ctx)
	require.NoError(t, err)
	require.Equal(t, "hello", s)
}

func TestTemplateResolvesInlineAndRule(t *testing.T) {
	resolver := mapResolver{"tab": Literal("t")}
	tmpl := NewTemplate("SELECT {col} FROM {tab};", map[string]Element{"col": Literal("id")})
	ctx := newTestContext(7, schema.Empty(), resolver)

	out, err := tmpl.Expand(ctx)
	require.NoError(t, err)
	require.Equal(t, "SELECT id FROM t;", out)
}

func TestTemplateUnresolvedPlaceholder(t *testing.T) {
	tmpl := NewTemplate("SELECT {missing};", nil)
	ctx := newTestContext(1, schema.Empty(), mapResolver{})

	_, err := tmpl.Expand(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, rqgerr.ErrGrammar))
}

func TestRepeatZeroZeroEmitsEmpty(t *testing.T) {
	r := &Repeat{Child: Digit{}, Min: 0, Max: 0, Sep: ","}
	ctx := newTestContext(1, schema.Empty(), nil)

	out, err := r.Expand(ctx)
	require.NoError(t, err)
	require.Equal(t, "", out)
}

func TestRepeatFixedCountJoinsWithSeparator(t *testing.T) {
	r := &Repeat{Child: Literal("x"), Min: 3, Max: 3, Sep: ","}
	ctx := newTestContext(42, schema.Empty(), nil)

	out, err := r.Expand(ctx)
	require.NoError(t, err)
	require.Equal(t, "x,x,x", out)
}

func TestRepeatValidateBounds(t *testing.T) {
	require.Error(t, (&Repeat{Min: 5, Max: 2}).Validate(10))
	require.Error(t, (&Repeat{Min: 0, Max: 20}).Validate(10))
	require.NoError(t, (&Repeat{Min: 0, Max: 10}).Validate(10))
}

func TestMaybeAlwaysOrNeverExpands(t *testing.T) {
	ctx := newTestContext(3, schema.Empty(), nil)
	never := &Maybe{Child: Literal("x"), P: 0}
	for i := 0; i < 50; i++ {
		out, err := never.Expand(ctx)
		require.NoError(t, err)
		require.Equal(t, "", out)
	}

	always := &Maybe{Child: Literal("x"), P: 1}
	for i := 0; i < 50; i++ {
		out, err := always.Expand(ctx)
		require.NoError(t, err)
		require.Equal(t, "x", out)
	}
}

func TestChoiceValidateEmptyOptions(t *testing.T) {
	c := NewChoice(nil)
	err := c.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, rqgerr.ErrGrammar))
}

func TestChoiceValidateWeightMismatch(t *testing.T) {
	c := NewChoice([]Element{Literal("a"), Literal("b")}, 1)
	require.Error(t, c.Validate())
}

func TestChoiceValidateNonPositiveWeight(t *testing.T) {
	c := NewChoice([]Element{Literal("a"), Literal("b")}, 1, 0)
	require.Error(t, c.Validate())
}

func TestChoiceUniformSelection(t *testing.T) {
	c := NewChoice([]Element{Literal("A"), Literal("B")})
	ctx := newTestContext(1, schema.Empty(), nil)

	seen := map[string]int{}
	for i := 0; i < 200; i++ {
		out, err := c.Expand(ctx)
		require.NoError(t, err)
		seen[out]++
	}
	require.Greater(t, seen["A"], 0)
	require.Greater(t, seen["B"], 0)
}

func TestChoiceAllOptionsPrunedAtDepthCapEmitsEmpty(t *testing.T) {
	c := NewChoice([]Element{Literal("A"), Literal("B")})
	c.SetTerminationMask([]bool{false, false})

	ctx := newTestContext(1, schema.Empty(), nil)
	ctx.Limits.MaxDepth = 1
	ctx.Depth = 1 // already at the cap

	out, err := c.Expand(ctx)
	require.NoError(t, err)
	require.Equal(t, "", out)
	require.Equal(t, 1, ctx.Warnings)
}

func TestChoiceRestrictsToTerminatingOptionsAtDepthCap(t *testing.T) {
	c := NewChoice([]Element{Literal("recursive"), Literal("safe")})
	c.SetTerminationMask([]bool{false, true})

	ctx := newTestContext(1, schema.Empty(), nil)
	ctx.Limits.MaxDepth = 1
	ctx.Depth = 1

	for i := 0; i < 20; i++ {
		out, err := c.Expand(ctx)
		require.NoError(t, err)
		require.Equal(t, "safe", out)
	}
}

func TestNumberAndDigitRanges(t *testing.T) {
	ctx := newTestContext(5, schema.Empty(), nil)
	n := Number{Lo: 10, Hi: 12}
	for i := 0; i < 50; i++ {
		out, err := n.Expand(ctx)
		require.NoError(t, err)
		require.Contains(t, []string{"10", "11", "12"}, out)
	}

	d := Digit{}
	for i := 0; i < 50; i++ {
		out, err := d.Expand(ctx)
		require.NoError(t, err)
		require.Len(t, out, 1)
	}
}

func TestLambdaPropagatesErrorAsExpansionError(t *testing.T) {
	boom := errors.New("boom")
	l := Lambda(func(ctx *Context) (string, error) { return "", boom })
	ctx := newTestContext(1, schema.Empty(), nil)

	_, err := l.Expand(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, rqgerr.ErrExpansion))
}

func TestLambdaMutatesState(t *testing.T) {
	l := Lambda(func(ctx *Context) (string, error) {
		ctx.State["picked"] = "orders"
		return ctx.State["picked"].(string), nil
	})
	ctx := newTestContext(1, schema.Empty(), nil)

	out, err := l.Expand(ctx)
	require.NoError(t, err)
	require.Equal(t, "orders", out)
	require.Equal(t, "orders", ctx.State["picked"])
}

func TestFieldFallsBackWhenNoColumnsMatch(t *testing.T) {
	f := Field{Filter: func(schema.ColumnRef) bool { return false }}
	ctx := newTestContext(1, schema.Empty(), nil)

	out, err := f.Expand(ctx)
	require.NoError(t, err)
	require.Equal(t, "id", out)
	require.Equal(t, 1, ctx.Warnings)
}

func TestFieldPicksMatchingColumn(t *testing.T) {
	view := schema.NewView([]schema.Table{{
		Name: "orders",
		Columns: []schema.Column{
			{Name: "id", Type: schema.TypeInteger},
			{Name: "total", Type: schema.TypeNumeric},
		},
	}})
	numeric := schema.TypeNumeric
	f := Field{Filter: func(c schema.ColumnRef) bool { return c.Column.Type == numeric }}
	ctx := newTestContext(1, view, nil)

	out, err := f.Expand(ctx)
	require.NoError(t, err)
	require.Equal(t, "total", out)
}

func TestTableFallsBackToFirstTable(t *testing.T) {
	view := schema.NewView([]schema.Table{{Name: "accounts"}, {Name: "orders"}})
	tbl := Table{Filter: func(schema.Table) bool { return false }}
	ctx := newTestContext(1, view, nil)

	out, err := tbl.Expand(ctx)
	require.NoError(t, err)
	require.Equal(t, "accounts", out)
	require.Equal(t, 1, ctx.Warnings)
}

func TestTableFallsBackToIDWhenSchemaEmpty(t *testing.T) {
	tbl := Table{}
	ctx := newTestContext(1, schema.Empty(), nil)

	out, err := tbl.Expand(ctx)
	require.NoError(t, err)
	require.Equal(t, "id", out)
}

func TestContextResetClearsState(t *testing.T) {
	ctx := newTestContext(1, schema.Empty(), nil)
	ctx.State["x"] = 1
	ctx.Depth = 3
	ctx.Warnings = 2

	ctx.Reset()
	require.Empty(t, ctx.State)
	require.Equal(t, 0, ctx.Depth)
	require.Equal(t, 0, ctx.Warnings)
}
