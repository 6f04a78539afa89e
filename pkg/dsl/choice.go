package dsl

import (
	"github.com/cockroachdb/errors"

	"github.com/sqlforge-labs/rqg/pkg/rqgerr"
)

// Choice picks one of Options and recurses into it. If Weights is nil,
// selection is uniform; otherwise Weights must be the same length as
// Options, all strictly positive, and selection draws r in [0, sum)
// and takes the first option whose cumulative weight exceeds r (spec
// §4.3's weighted-selection rule).
type Choice struct {
	Options []Element
	Weights []int

	// terminates[i] records whether Options[i] was shown, at Grammar
	// freeze time, to be able to reach a finite expansion at all. An
	// option that recurses into a rule with a base case counts as
	// terminating, so recursive options are not excluded at the depth
	// cap. nil until freeze runs; Expand then treats every option as
	// eligible.
	terminates []bool
}

// NewChoice builds a Choice. Validation of the non-empty-options and
// weight/option-length invariants happens at Grammar freeze time, not
// here, since a Choice can be constructed before its owning Grammar
// exists.
func NewChoice(options []Element, weights ...int) *Choice {
	c := &Choice{Options: options}
	if len(weights) > 0 {
		c.Weights = weights
	}
	return c
}

// SetTerminationMask records, per option, whether it was proven at
// freeze time to reach a terminating expansion. Called only by the
// grammar package's freeze analysis.
func (c *Choice) SetTerminationMask(mask []bool) {
	c.terminates = mask
}

// Validate reports the Choice invariants of spec §3: at least one
// option, and if weights are present they are all positive and match
// Options in length.
func (c *Choice) Validate() error {
	if len(c.Options) == 0 {
		return errors.Wrapf(rqgerr.ErrGrammar, "choice has no options")
	}
	if c.Weights == nil {
		return nil
	}
	if len(c.Weights) != len(c.Options) {
		return errors.Wrapf(rqgerr.ErrGrammar, "choice has %d options but %d weights", len(c.Options), len(c.Weights))
	}
	for _, w := range c.Weights {
		if w <= 0 {
			return errors.Wrapf(rqgerr.ErrGrammar, "choice weight %d is not positive", w)
		}
	}
	return nil
}

// Expand selects one option (restricting to terminating options once
// the depth cap is reached) and recurses into it.
func (c *Choice) Expand(ctx *Context) (string, error) {
	atCap := ctx.enter()
	defer ctx.leave()

	candidates := c.eligibleIndices(atCap)
	if len(candidates) == 0 {
		ctx.Warnings++
		return "", nil
	}

	idx := candidates[c.pick(ctx, candidates)]
	return c.Options[idx].Expand(ctx)
}

// eligibleIndices returns the option indices Expand may choose from:
// all of them normally, or only the ones marked terminating once the
// depth cap has been reached. A recursive option whose rule has a base
// case stays eligible at the cap.
func (c *Choice) eligibleIndices(atCap bool) []int {
	if !atCap || c.terminates == nil {
		out := make([]int, len(c.Options))
		for i := range out {
			out[i] = i
		}
		return out
	}
	var out []int
	for i, ok := range c.terminates {
		if ok {
			out = append(out, i)
		}
	}
	return out
}

// pick draws an index into candidates, honoring Weights when present.
// Weighted selection only makes sense over the full option set, so
// when candidates is a strict subset (depth-cap pruning), weights are
// re-applied over just the surviving options in their original order.
func (c *Choice) pick(ctx *Context, candidates []int) int {
	if c.Weights == nil {
		return ctx.RNG.Intn(len(candidates))
	}

	weights := make([]int, len(candidates))
	for i, idx := range candidates {
		weights[i] = c.Weights[idx]
	}
	return ctx.RNG.WeightedIndex(weights)
}
