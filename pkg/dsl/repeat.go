package dsl

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/sqlforge-labs/rqg/pkg/rqgerr"
)

// Repeat expands Child n times, n drawn uniformly from [Min, Max], and
// joins the results with Sep.
type Repeat struct {
	Child    Element
	Min, Max int
	Sep      string
}

// Validate enforces spec §3's `0 <= min <= max <= repeat_cap`.
func (r *Repeat) Validate(repeatCap int) error {
	if r.Min < 0 || r.Min > r.Max {
		return errors.Wrapf(rqgerr.ErrGrammar, "repeat has invalid bounds [%d,%d]", r.Min, r.Max)
	}
	if r.Max > repeatCap {
		return errors.Wrapf(rqgerr.ErrGrammar, "repeat max %d exceeds repeat cap %d", r.Max, repeatCap)
	}
	return nil
}

// Expand draws n in [Min,Max] and expands Child n times.
func (r *Repeat) Expand(ctx *Context) (string, error) {
	atCap := ctx.enter()
	defer ctx.leave()
	if atCap {
		ctx.Warnings++
		return "", nil
	}

	n := r.Max
	if r.Max > r.Min {
		n = ctx.RNG.IntRange(r.Min, r.Max)
	}
	if n == 0 {
		return "", nil
	}

	parts := make([]string, n)
	for i := 0; i < n; i++ {
		s, err := r.Child.Expand(ctx)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, r.Sep), nil
}
