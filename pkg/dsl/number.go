package dsl

import "strconv"

// Number emits a decimal integer drawn uniformly from [Lo, Hi].
type Number struct {
	Lo, Hi int
}

// Expand draws an integer in [Lo,Hi] and renders it in base 10.
func (n Number) Expand(ctx *Context) (string, error) {
	return strconv.Itoa(ctx.RNG.IntRange(n.Lo, n.Hi)), nil
}

// Digit emits a single decimal digit, uniform in [0,9].
type Digit struct{}

// Expand draws a digit in [0,9] and renders it in base 10.
func (Digit) Expand(ctx *Context) (string, error) {
	return strconv.Itoa(ctx.RNG.IntRange(0, 9)), nil
}
