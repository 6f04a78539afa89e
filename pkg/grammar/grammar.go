// Package grammar implements the named rule map, entry-rule resolution,
// and freeze-time validation component (C4) that owns and binds the
// Element algebra of pkg/dsl into a runnable Grammar.
package grammar

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/sqlforge-labs/rqg/pkg/dsl"
	"github.com/sqlforge-labs/rqg/pkg/rqgerr"
)

// Grammar is a named, frozen collection of rules with a designated
// entry rule. It is built incrementally via rule(), then made
// immutable and ready for concurrent use by freeze().
type Grammar struct {
	Name  string
	Entry string

	mu      sync.RWMutex
	rules   map[string]dsl.Element
	frozen  bool
	choices []*dsl.Choice // every Choice reachable from any rule, collected at freeze
}

// New creates an unfrozen Grammar. entry defaults to "query" if empty.
func New(name, entry string) *Grammar {
	if entry == "" {
		entry = "query"
	}
	return &Grammar{Name: name, Entry: entry, rules: map[string]dsl.Element{}}
}

// Rule registers or replaces the element bound to name. Panics if
// called after Freeze, matching the "immutable after freeze" invariant
// of §4.4 — authoring happens before a Grammar is ever shared with
// workers.
func (g *Grammar) Rule(name string, e dsl.Element) *Grammar {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		panic("grammar: Rule called after Freeze")
	}
	g.rules[name] = e
	return g
}

// Resolve implements dsl.RuleResolver. Safe for concurrent readers once
// frozen; the rule map is never mutated again after Freeze.
func (g *Grammar) Resolve(name string) (dsl.Element, bool) {
	e, ok := g.rules[name]
	return e, ok
}

// ruleNames returns every registered rule name, sorted — the
// deterministic iteration order §4.3 requires for any map traversal
// that feeds an RNG-driven selection.
func (g *Grammar) ruleNames() []string {
	names := make([]string, 0, len(g.rules))
	for n := range g.rules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Freeze validates the grammar and precomputes the termination mask
// every Choice needs for depth-cap pruning. It performs, in one pass:
//
//  1. Reference-graph construction and unknown-reference detection
//     (RuleRef/Template placeholders naming a rule that doesn't exist).
//  2. Choice invariant validation (non-empty options, weight/option
//     length and positivity).
//  3. Repeat bound validation against repeatCap.
//  4. Per-Choice termination analysis: for each option, whether it is
//     "productive" — can reach a leaf expansion at all, computed as a
//     least fixpoint over the rule reference graph so mutually
//     recursive rules with a base case are still recognized as
//     terminating.
//
// Any violation is a fatal GrammarError; Freeze returns before mutating
// anything on error. A successfully frozen Grammar is safe for
// concurrent, lock-free expansion by any number of workers.
func (g *Grammar) Freeze(repeatCap int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.frozen {
		return nil
	}

	if _, ok := g.rules[g.Entry]; !ok {
		return errors.Wrapf(rqgerr.ErrGrammar, "entry rule %q is not registered", g.Entry)
	}

	var choices []*dsl.Choice
	var repeats []*dsl.Repeat

	for _, name := range g.ruleNames() {
		refs := map[string]bool{}
		if err := walk(g.rules[name], g, &choices, &repeats, refs); err != nil {
			return errors.Wrapf(err, "rule %q", name)
		}
	}

	for _, c := range choices {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	for _, r := range repeats {
		if err := r.Validate(repeatCap); err != nil {
			return err
		}
	}

	terminates := terminatingRules(g)
	for _, c := range choices {
		mask := make([]bool, len(c.Options))
		for i, opt := range c.Options {
			mask[i] = elementTerminates(opt, g, terminates)
		}
		c.SetTerminationMask(mask)
	}

	g.choices = choices
	g.frozen = true
	return nil
}

// Frozen reports whether Freeze has completed successfully.
func (g *Grammar) Frozen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.frozen
}

// Generate invokes Element expansion on the named rule, defaulting to
// the Grammar's entry rule when name is empty. ctx.Resolver must be
// this Grammar (or a Grammar sharing the same rule map).
func (g *Grammar) Generate(name string, ctx *dsl.Context) (string, error) {
	if name == "" {
		name = g.Entry
	}
	e, ok := g.Resolve(name)
	if !ok {
		return "", errors.Wrapf(rqgerr.ErrGrammar, "unknown rule %q", name)
	}
	return e.Expand(ctx)
}
