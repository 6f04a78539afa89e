// Package dsl implements the Element algebra: the closed set of
// generator node kinds (literal, choice, template, repeat, maybe, rule
// reference, lambda, number, digit, schema-aware field/table) and their
// expansion semantics over a per-worker Context.
package dsl

import (
	"github.com/sqlforge-labs/rqg/pkg/rng"
	"github.com/sqlforge-labs/rqg/pkg/schema"
)

// RuleResolver looks up a named rule's root Element. Grammar implements
// this; dsl depends only on the interface so the element algebra has no
// import-time dependency on the grammar package that owns it.
type RuleResolver interface {
	Resolve(name string) (Element, bool)
}

// Limits bounds recursion and repetition during expansion.
type Limits struct {
	MaxDepth  int
	RepeatCap int
}

// Context is the per-worker, per-expansion scratchpad threaded through
// every Element.Expand call: the worker's RNG stream, a mutable state
// bag Lambdas use to coordinate within one top-level expansion, the
// shared read-only schema snapshot, the current recursion depth, and
// the active limits.
type Context struct {
	RNG      *rng.Stream
	State    map[string]any
	Schema   *schema.View
	Depth    int
	Limits   Limits
	Resolver RuleResolver

	// Warnings counts occurrences of non-fatal degraded behavior, e.g.
	// a depth cap forcing an empty expansion. Callers may inspect it
	// after a top-level expansion to surface a warning metric.
	Warnings int
}

// NewContext builds a Context for one worker. The returned Context's
// State is empty; call Reset before each top-level expansion to clear
// any state left over from a previous query.
func NewContext(r *rng.Stream, view *schema.View, resolver RuleResolver, limits Limits) *Context {
	return &Context{
		RNG:      r,
		State:    make(map[string]any),
		Schema:   view,
		Resolver: resolver,
		Limits:   limits,
	}
}

// Reset clears per-query scratch state before a new top-level
// expansion, per spec: "state is cleared before each top-level
// expansion."
func (c *Context) Reset() {
	c.State = make(map[string]any)
	c.Depth = 0
	c.Warnings = 0
}

// enter increments the depth counter on entry to RuleRef/Choice/Repeat
// and returns whether the depth cap has been reached.
func (c *Context) enter() (atCap bool) {
	c.Depth++
	return c.Depth >= c.Limits.MaxDepth
}

func (c *Context) leave() {
	c.Depth--
}
