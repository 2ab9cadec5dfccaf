// Package familycode generates the short join codes children use to find
// their family.
package familycode

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
)

const (
	letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits  = "0123456789"

	// Length is the number of characters in a family code
	Length = 6
)

var pattern = regexp.MustCompile(`^[A-Z]{3}[0-9]{3}$`)

// Generator produces candidate family codes
type Generator interface {
	Generate() string
}

// GeneratorFunc adapts a plain function to the Generator interface
type GeneratorFunc func() string

func (f GeneratorFunc) Generate() string { return f() }

// RandomGenerator draws three uppercase letters followed by three digits.
// It is not cryptographically secure and does not guarantee uniqueness.
type RandomGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom creates a generator over src. A nil src uses the runtime's
// global random source.
func NewRandom(src rand.Source) *RandomGenerator {
	g := &RandomGenerator{}
	if src != nil {
		g.rng = rand.New(src)
	}
	return g
}

// Generate returns a new candidate code
func (g *RandomGenerator) Generate() string {
	var b strings.Builder
	b.Grow(Length)
	for i := 0; i < 3; i++ {
		b.WriteByte(letters[g.intN(len(letters))])
	}
	for i := 0; i < 3; i++ {
		b.WriteByte(digits[g.intN(len(digits))])
	}
	return b.String()
}

func (g *RandomGenerator) intN(n int) int {
	if g.rng == nil {
		return rand.IntN(n)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}

// Normalize prepares user input for lookup. Codes are stored uppercase.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether code is a well-formed, normalized family code
func Valid(code string) bool {
	return pattern.MatchString(code)
}
