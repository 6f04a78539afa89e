package dsl

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/sqlforge-labs/rqg/pkg/rqgerr"
)

// TemplatePart is one piece of a Template: either a literal fragment
// (Placeholder == "") or a named placeholder.
type TemplatePart struct {
	Literal     string
	Placeholder string
}

// Template interleaves literal text with named placeholders, each
// resolved at construction to an inline child Element, or left to
// resolve against the owning Grammar's rule table at expansion time.
type Template struct {
	Parts    []TemplatePart
	Inline   map[string]Element // placeholder name -> inline child, optional
}

// NewTemplate parses a format string using "{name}" placeholders into a
// Template, pairing it with an optional inline-child map. Placeholders
// absent from inline resolve against the Grammar's rule table at
// expansion time (spec §4.3(b)); a placeholder naming neither is a
// GrammarError caught at freeze.
func NewTemplate(format string, inline map[string]Element) *Template {
	var parts []TemplatePart
	var lit strings.Builder

	flushLiteral := func() {
		if lit.Len() > 0 {
			parts = append(parts, TemplatePart{Literal: lit.String()})
			lit.Reset()
		}
	}

	runes := []rune(format)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '{' {
			end := indexRune(runes, i+1, '}')
			if end < 0 {
				lit.WriteRune(runes[i])
				continue
			}
			flushLiteral()
			parts = append(parts, TemplatePart{Placeholder: string(runes[i+1 : end])})
			i = end
			continue
		}
		lit.WriteRune(runes[i])
	}
	flushLiteral()

	return &Template{Parts: parts, Inline: inline}
}

func indexRune(runes []rune, from int, target rune) int {
	for i := from; i < len(runes); i++ {
		if runes[i] == target {
			return i
		}
	}
	return -1
}

// Resolve returns the Element a placeholder resolves to: the inline
// child if one was supplied, else the named rule in resolver. The
// second return value is false if neither exists — a construction error
// a Grammar's freeze() must catch.
func (t *Template) Resolve(name string, resolver RuleResolver) (Element, bool) {
	if t.Inline != nil {
		if e, ok := t.Inline[name]; ok {
			return e, true
		}
	}
	if resolver != nil {
		return resolver.Resolve(name)
	}
	return nil, false
}

// Expand walks Parts in order, concatenating literal fragments and the
// expansion of each placeholder's resolved Element.
func (t *Template) Expand(ctx *Context) (string, error) {
	var out strings.Builder
	for _, part := range t.Parts {
		if part.Placeholder == "" {
			out.WriteString(part.Literal)
			continue
		}
		child, ok := t.Resolve(part.Placeholder, ctx.Resolver)
		if !ok {
			return "", errors.Wrapf(rqgerr.ErrGrammar, "template placeholder %q does not resolve to an inline child or a rule", part.Placeholder)
		}
		s, err := child.Expand(ctx)
		if err != nil {
			return "", err
		}
		out.WriteString(s)
	}
	return out.String(), nil
}
