package dsl

// Maybe expands Child with probability P, otherwise emits "".
type Maybe struct {
	Child Element
	P     float64
}

// Expand draws u in [0,1) and expands Child iff u < P. P=0 never
// expands; P=1 always expands (u is always < 1).
func (m *Maybe) Expand(ctx *Context) (string, error) {
	u := ctx.RNG.Float64()
	if u < m.P {
		return m.Child.Expand(ctx)
	}
	return "", nil
}
