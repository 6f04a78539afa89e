package dsl

import (
	"github.com/cockroachdb/errors"

	"github.com/sqlforge-labs/rqg/pkg/rqgerr"
)

// Lambda is an opaque, user-supplied generator function. It may read
// and mutate ctx.State to coordinate with sibling elements in the same
// top-level expansion (e.g. picking a table once and reusing it). A
// Lambda runs on its owning worker's goroutine and must not capture
// mutable state shared across workers.
type Lambda func(ctx *Context) (string, error)

// Expand invokes the function, wrapping any returned error so callers
// can recognize it as a per-query generation failure rather than a
// fatal grammar error.
func (l Lambda) Expand(ctx *Context) (string, error) {
	s, err := l(ctx)
	if err != nil {
		return "", errors.Wrapf(rqgerr.ErrExpansion, "lambda expansion: %v", err)
	}
	return s, nil
}
