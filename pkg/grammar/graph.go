package grammar

import (
	"github.com/cockroachdb/errors"

	"github.com/sqlforge-labs/rqg/pkg/dsl"
	"github.com/sqlforge-labs/rqg/pkg/rqgerr"
)

// walk visits every Element reachable from e without crossing a
// RuleRef boundary, collecting every Choice and Repeat found (so
// Freeze can validate them and, for Choice, precompute a termination
// mask) and the set of rule names directly referenced via RuleRef or
// an unresolved Template placeholder. It returns a fatal GrammarError
// on any reference that doesn't resolve to a registered rule.
func walk(e dsl.Element, g *Grammar, choices *[]*dsl.Choice, repeats *[]*dsl.Repeat, refs map[string]bool) error {
	switch v := e.(type) {
	case dsl.Literal, dsl.Number, dsl.Digit, dsl.Field, dsl.Table, dsl.Lambda:
		return nil
	case *dsl.Choice:
		*choices = append(*choices, v)
		for _, opt := range v.Options {
			if err := walk(opt, g, choices, repeats, refs); err != nil {
				return err
			}
		}
		return nil
	case *dsl.Template:
		for _, part := range v.Parts {
			if part.Placeholder == "" {
				continue
			}
			child, ok := v.Resolve(part.Placeholder, g)
			if !ok {
				return errors.Wrapf(rqgerr.ErrGrammar, "template placeholder %q does not resolve", part.Placeholder)
			}
			if _, isInline := v.Inline[part.Placeholder]; isInline {
				if err := walk(child, g, choices, repeats, refs); err != nil {
					return err
				}
				continue
			}
			refs[part.Placeholder] = true
		}
		return nil
	case *dsl.Repeat:
		*repeats = append(*repeats, v)
		return walk(v.Child, g, choices, repeats, refs)
	case *dsl.Maybe:
		return walk(v.Child, g, choices, repeats, refs)
	case dsl.RuleRef:
		if _, ok := g.rules[v.Name]; !ok {
			return errors.Wrapf(rqgerr.ErrGrammar, "unresolved rule reference %q", v.Name)
		}
		refs[v.Name] = true
		return nil
	default:
		// An unrecognized Element kind (e.g. a user-supplied type
		// implementing dsl.Element directly) has no statically known
		// references; it is treated as an opaque leaf like Lambda.
		return nil
	}
}

// terminatingRules computes the largest set of rules that are
// "productive": can reach a finite expansion without depending on a
// rule outside the set. This is the standard least-fixpoint
// reachability computation used for CFG emptiness/productivity
// analysis, applied here to Choice depth-cap pruning (§4.4): a rule
// that isn't in this set can only be reached through unbounded mutual
// recursion, so a Choice forced to avoid recursive branches at the
// depth cap must avoid it.
//
// It iterates to a fixpoint rather than doing a single cycle-detection
// pass, because whether a rule terminates can depend on another rule
// that is itself inside a cycle but has an escape hatch (e.g. a Choice
// offering both a recursive and a base-case option) — a property a
// simple "is this rule in a cycle" test would get wrong.
func terminatingRules(g *Grammar) map[string]bool {
	terminates := map[string]bool{}
	for {
		changed := false
		for name, e := range g.rules {
			if terminates[name] {
				continue
			}
			if elementTerminates(e, g, terminates) {
				terminates[name] = true
				changed = true
			}
		}
		if !changed {
			return terminates
		}
	}
}

// elementTerminates reports whether e can, by itself, reach a finite
// expansion given which rules are currently known to terminate.
func elementTerminates(e dsl.Element, g *Grammar, terminates map[string]bool) bool {
	switch v := e.(type) {
	case dsl.Literal, dsl.Number, dsl.Digit, dsl.Field, dsl.Table, dsl.Lambda:
		return true
	case *dsl.Maybe:
		// Maybe can always choose to emit "" instead of recursing.
		return true
	case *dsl.Repeat:
		if v.Min == 0 {
			return true
		}
		return elementTerminates(v.Child, g, terminates)
	case *dsl.Choice:
		for _, opt := range v.Options {
			if elementTerminates(opt, g, terminates) {
				return true
			}
		}
		return false
	case *dsl.Template:
		for _, part := range v.Parts {
			if part.Placeholder == "" {
				continue
			}
			child, ok := v.Resolve(part.Placeholder, g)
			if !ok || !elementTerminates(child, g, terminates) {
				return false
			}
		}
		return true
	case dsl.RuleRef:
		return terminates[v.Name]
	default:
		return true
	}
}
