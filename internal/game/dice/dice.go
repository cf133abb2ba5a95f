// Package dice provides the randomness abstraction used by NPC behavior:
// a concurrency-safe Source plus helpers for probability checks and
// uniform draws.
package dice

// precision is the resolution of the fractional draws built on Intn.
const precision = 1 << 20

// Source is the randomness provider for NPC behavior.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// Float returns a uniform value in [0, 1).
//
// Precondition: src must be non-nil.
func Float(src Source) float64 {
	return float64(src.Intn(precision)) / precision
}

// Chance reports whether an event with probability p fires.
//
// Postcondition: p <= 0 never fires; p >= 1 always fires.
func Chance(src Source, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return Float(src) < p
}

// Uniform returns a uniform value in [lo, hi).
//
// Precondition: lo <= hi.
func Uniform(src Source, lo, hi float64) float64 {
	return lo + Float(src)*(hi-lo)
}
