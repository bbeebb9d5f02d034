package flood

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCeilingReached means too many challenges are already outstanding and the
// joiner should be turned away, not queued.
var ErrCeilingReached = errors.New("challenge ceiling reached")

type ChallengeCounter interface {
	CountChallenges(ctx context.Context) (int, error)
}

// Controller throttles challenge issuance: a hard ceiling on concurrently
// outstanding challenges plus a minimum spacing between dispatches. State is
// process-local and resets on restart.
type Controller struct {
	counter ChallengeCounter
	ceiling int
	spacing time.Duration

	mu           sync.Mutex
	lastIssuedAt time.Time
}

func NewController(counter ChallengeCounter, ceiling int, spacing time.Duration) *Controller {
	return &Controller{
		counter: counter,
		ceiling: ceiling,
		spacing: spacing,
	}
}

// Admit checks the outstanding-challenge ceiling. Excess joiners are rejected
// outright with ErrCeilingReached; there is no queue.
func (c *Controller) Admit(ctx context.Context) error {
	count, err := c.counter.CountChallenges(ctx)
	if err != nil {
		return err
	}
	if count >= c.ceiling {
		return ErrCeilingReached
	}
	return nil
}

// WaitTurn blocks until the minimum spacing since the previous dispatch has
// elapsed, then claims the slot. Concurrent callers line up behind each other
// because each claim moves the shared timestamp forward.
func (c *Controller) WaitTurn(ctx context.Context) error {
	c.mu.Lock()
	now := time.Now()
	next := c.lastIssuedAt.Add(c.spacing)
	if next.Before(now) {
		next = now
	}
	c.lastIssuedAt = next
	wait := next.Sub(now)
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
