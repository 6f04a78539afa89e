package dsl

import (
	"github.com/cockroachdb/errors"

	"github.com/sqlforge-labs/rqg/pkg/rqgerr"
)

// RuleRef names a rule to resolve against the owning Grammar's rule
// table at expansion time. An unresolved name is a fatal GrammarError,
// caught by Grammar.freeze; Expand also returns it if it meets one.
type RuleRef struct {
	Name string
}

// Expand looks up Name in ctx.Resolver, increments depth, and expands
// the rule's definition. The bulk of depth-cap termination is handled
// by Choice consulting its precomputed termination mask; RuleRef's own
// hard stop at the cap is the backstop that keeps depth bounded even
// through a chain of rules with no intervening Choice.
func (r RuleRef) Expand(ctx *Context) (string, error) {
	child, ok := ctx.Resolver.Resolve(r.Name)
	if !ok {
		return "", errors.Wrapf(rqgerr.ErrGrammar, "unresolved rule reference %q", r.Name)
	}

	atCap := ctx.enter()
	defer ctx.leave()
	if atCap {
		ctx.Warnings++
		return "", nil
	}
	return child.Expand(ctx)
}
