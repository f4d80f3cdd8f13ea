// Package ordernumber produces human-readable order numbers of the form
// ORD-YYYYMMDD-NNNN. Uniqueness is not checked here: callers insert and ask
// for another candidate when the store reports a collision.
package ordernumber

import (
	"fmt"
	"math/rand"
	"time"
)

const (
	DefaultMaxAttempts = 10
	dateLayout         = "20060102"
)

// FallbackFunc builds the number used once every random attempt collided.
type FallbackFunc func(now time.Time) string

type Generator struct {
	// MaxAttempts bounds the random candidates handed out per order.
	MaxAttempts int
	// Intn returns a value in [0, n). Defaults to math/rand/v2.
	Intn func(n int) int
	// Fallback defaults to EpochFallback.
	Fallback FallbackFunc
	// Location fixes the calendar day embedded in the number. Defaults to UTC.
	Location *time.Location
}

func New(maxAttempts int) *Generator {
	return &Generator{MaxAttempts: maxAttempts}
}

// Random returns ORD-{YYYYMMDD}-{4 random digits}.
func (g *Generator) Random(now time.Time) string {
	intn := g.Intn
	if intn == nil {
		intn = rand.Intn
	}
	return fmt.Sprintf("ORD-%s-%04d", g.day(now), intn(10000))
}

func (g *Generator) FallbackNumber(now time.Time) string {
	if g.Fallback != nil {
		return g.Fallback(now)
	}
	return EpochFallback(now.In(g.location()))
}

func (g *Generator) Attempts() int {
	if g.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return g.MaxAttempts
}

// Candidates yields up to Attempts random numbers followed by one fallback
// number. fn returns true to stop early, which Candidates reports as its
// result together with the number that was accepted and the 1-based attempt.
func (g *Generator) Candidates(now time.Time, fn func(number string) (bool, error)) (string, int, error) {
	attempts := g.Attempts()
	for i := 1; i <= attempts+1; i++ {
		number := g.Random(now)
		if i > attempts {
			number = g.FallbackNumber(now)
		}
		done, err := fn(number)
		if err != nil {
			return number, i, err
		}
		if done {
			return number, i, nil
		}
	}
	return "", attempts + 1, ErrExhausted
}

// EpochFallback returns ORD-{YYYYMMDD}-{last 6 digits of epoch milliseconds}.
func EpochFallback(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%06d", now.Format(dateLayout), now.UnixMilli()%1_000_000)
}

func (g *Generator) day(now time.Time) string {
	return now.In(g.location()).Format(dateLayout)
}

func (g *Generator) location() *time.Location {
	if g.Location == nil {
		return time.UTC
	}
	return g.Location
}
