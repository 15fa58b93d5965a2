package export

// fibBits is the width of the Fibonacci component of a handle.
const fibBits = 20

const fibMask = 1<<fibBits - 1

// handleGenerator issues opaque session handles.
//
// Each handle combines an issue counter (high bits) with the low bits of a
// Fibonacci sequence seeded at 0 and 1 and advanced by summing the previous
// two values. The Fibonacci part keeps consecutive handles far apart; the
// counter guarantees a handle is never issued twice, even after the 64-bit
// Fibonacci state wraps. Handles are always positive.
//
// This is collision avoidance, not access control: the sequence is fully
// deterministic.
type handleGenerator struct {
	prev, cur uint64
	issued    int64
}

func newHandleGenerator() *handleGenerator {
	return &handleGenerator{prev: 0, cur: 1}
}

// next returns the next handle. Not safe for concurrent use; the manager
// calls it under its table lock.
func (g *handleGenerator) next() int64 {
	g.prev, g.cur = g.cur, g.prev+g.cur
	g.issued++
	return g.issued<<fibBits | int64(g.cur&fibMask)
}
