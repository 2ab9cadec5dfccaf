package familycode

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Exhaustion decides what happens when every attempt collided
type Exhaustion int

const (
	// Fail returns ErrExhausted
	Fail Exhaustion = iota
	// Proceed accepts the last candidate even though it collided
	Proceed
)

func (e Exhaustion) String() string {
	if e == Proceed {
		return "proceed"
	}
	return "fail"
}

// ParseExhaustion parses "fail" or "proceed"
func ParseExhaustion(s string) (Exhaustion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail":
		return Fail, nil
	case "proceed":
		return Proceed, nil
	}
	return Fail, fmt.Errorf("unknown exhaustion policy %q", s)
}

// DefaultMaxAttempts is the number of candidates tried before giving up
const DefaultMaxAttempts = 10

// ErrExhausted is returned when no unique code was found within the policy
var ErrExhausted = errors.New("could not generate a unique family code")

// Policy bounds the retry-on-collision loop
type Policy struct {
	MaxAttempts  int
	OnExhaustion Exhaustion
}

// DefaultPolicy tries ten candidates and fails if all of them are taken
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, OnExhaustion: Fail}
}

// ExistsFunc reports whether a family already uses code
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Unique generates candidates until one is not taken. It returns the code and
// the number of existence checks performed. Errors from exists abort the loop.
func (p Policy) Unique(ctx context.Context, gen Generator, exists ExistsFunc) (string, int, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var code string
	for i := 1; i <= attempts; i++ {
		code = gen.Generate()
		taken, err := exists(ctx, code)
		if err != nil {
			return "", i, fmt.Errorf("failed to check family code %s: %w", code, err)
		}
		if !taken {
			return code, i, nil
		}
	}

	if p.OnExhaustion == Proceed {
		return code, attempts, nil
	}
	return "", attempts, fmt.Errorf("%w after %d attempts", ErrExhausted, attempts)
}
