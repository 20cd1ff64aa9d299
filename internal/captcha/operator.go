package captcha

import (
	"context"
	"strings"
	"sync"
)

// Operator hands challenges to a human over the operator API and waits for
// the typed answer.
type Operator struct {
	mu      sync.Mutex
	pending *Challenge
	answers chan string
}

// NewOperator creates an operator solver with nothing pending.
func NewOperator() *Operator {
	return &Operator{answers: make(chan string, 1)}
}

// Solve publishes ch and blocks until Submit delivers an answer.
func (o *Operator) Solve(ctx context.Context, ch Challenge) (string, error) {
	o.mu.Lock()
	o.pending = &ch
	// Drop an answer left over from an earlier challenge.
	select {
	case <-o.answers:
	default:
	}
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.pending = nil
		o.mu.Unlock()
	}()

	select {
	case text := <-o.answers:
		return text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Pending returns the challenge currently awaiting an answer.
func (o *Operator) Pending() (Challenge, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pending == nil {
		return Challenge{}, false
	}
	return *o.pending, true
}

// Submit delivers the operator's answer to the waiting run.
func (o *Operator) Submit(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyAnswer
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.pending == nil {
		return ErrNoChallenge
	}
	select {
	case o.answers <- text:
		return nil
	default:
		return ErrNoChallenge
	}
}
