package testutils

import "github.com/argus-labs/arena/pkg/assert"

const maxChoices = 32

// Exhaustive enumerates every sequence of bounded choices a test makes, one sequence per iteration:
//
//	for g := testutils.NewExhaustive(); !g.Done(); {
//		n := g.Intn(3)
//		...
//	}
//
// It records the choices of the current iteration together with their bounds. Done advances to the next sequence by
// incrementing the rightmost choice that is still below its bound and resetting every choice after it. See
// <https://matklad.github.io/2021/11/07/generate-all-the-things.html>.
type Exhaustive struct {
	started bool
	choices [maxChoices]struct{ value, bound uint32 }
	pos     int
	depth   int
}

func NewExhaustive() *Exhaustive {
	return &Exhaustive{}
}

// Done reports whether every sequence has been visited, advancing to the next one otherwise.
func (g *Exhaustive) Done() bool {
	if !g.started {
		g.started = true
		return false
	}
	for i := g.depth - 1; i >= 0; i-- {
		if g.choices[i].value < g.choices[i].bound {
			g.choices[i].value++
			g.depth = i + 1
			g.pos = 0
			return false
		}
	}
	return true
}

// Intn returns a choice in [0, bound] (inclusive).
func (g *Exhaustive) Intn(bound int) int {
	assert.That(g.pos < maxChoices, "exhaustive: more than %d choices", maxChoices)
	if g.pos == g.depth {
		g.choices[g.pos].value = 0
		g.depth++
	}
	g.choices[g.pos].bound = uint32(bound) //nolint:gosec // bounds are small in tests
	g.pos++
	return int(g.choices[g.pos-1].value)
}

// Bool returns both booleans across iterations.
func (g *Exhaustive) Bool() bool {
	return g.Intn(1) == 1
}

// Choose returns every element of s across iterations.
func Choose[T any](g *Exhaustive, s []T) T {
	assert.That(len(s) > 0, "exhaustive: empty slice")
	return s[g.Intn(len(s)-1)]
}
