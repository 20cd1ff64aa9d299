// Package captcha supplies answers to the portal's search CAPTCHA.
package captcha

import (
	"context"
	"errors"
	"time"
)

// ErrNoChallenge is returned when an answer arrives while nothing is pending.
var ErrNoChallenge = errors.New("no CAPTCHA is awaiting an answer")

// ErrEmptyAnswer is returned when a solver produced blank text.
var ErrEmptyAnswer = errors.New("empty CAPTCHA answer")

// Challenge is one CAPTCHA image presented to a solver.
type Challenge struct {
	Image    []byte
	Attempt  int
	IssuedAt time.Time
}

// Solver turns a challenge into the text to submit. Solve blocks until an
// answer is available or ctx ends.
type Solver interface {
	Solve(ctx context.Context, ch Challenge) (string, error)
}
