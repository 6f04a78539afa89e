package dsl

// Element is one node of the generator tree: given a Context, it
// produces a string. Every concrete variant below (Literal, Choice,
// Template, Repeat, Maybe, RuleRef, Lambda, Number, Digit, Field,
// Table) implements Expand.
type Element interface {
	Expand(ctx *Context) (string, error)
}

// Literal is a fixed string, the algebra's only leaf with no RNG draw.
type Literal string

// Expand returns the literal text unchanged.
func (l Literal) Expand(ctx *Context) (string, error) {
	return string(l), nil
}
