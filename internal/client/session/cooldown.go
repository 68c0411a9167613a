// Package session holds the authentication state machine: the orchestrator
// driving sign-in, sign-up, email confirmation, and the quick-unlock opt-in
// flow, plus the cooldown used to throttle confirmation resends.
package session

import (
	"sync"
	"time"
)

// Cooldown is a single self-deactivating countdown. Start always resets to
// the full duration; reaching zero stops the run. All methods are safe for
// concurrent use. onChange, when set, is called after every tick with the
// remaining count: from the cooldown's own goroutine, never under the
// caller's locks.
type Cooldown struct {
	mu        sync.Mutex
	count     int
	tick      time.Duration
	remaining int
	stop      chan struct{}
	onChange  func(remaining int)
}

// NewCooldown builds a cooldown of duration, decrementing once per tick.
// With tick == time.Second the remaining count is in seconds; tests shrink
// the tick to keep real time out of assertions.
func NewCooldown(duration, tick time.Duration, onChange func(int)) *Cooldown {
	if tick <= 0 {
		tick = time.Second
	}
	return &Cooldown{
		count:    int(duration / tick),
		tick:     tick,
		onChange: onChange,
	}
}

// Start resets the countdown to the full duration and begins ticking.
// A running countdown is superseded, never stacked.
func (c *Cooldown) Start() {
	c.mu.Lock()
	if c.stop != nil {
		close(c.stop)
	}
	c.remaining = c.count
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()

	go c.run(stop)
}

// Stop cancels any running countdown and zeroes the remaining count.
// Idempotent; safe to call on teardown.
func (c *Cooldown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.remaining = 0
}

// Active reports whether a countdown is running.
func (c *Cooldown) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

// Remaining returns the current count. Never negative.
func (c *Cooldown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Cooldown) run(stop chan struct{}) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.stop != stop {
				// Superseded by a newer Start or stopped.
				c.mu.Unlock()
				return
			}
			c.remaining--
			remaining := c.remaining
			done := remaining <= 0
			if done {
				c.remaining = 0
				c.stop = nil
				remaining = 0
			}
			c.mu.Unlock()

			if c.onChange != nil {
				c.onChange(remaining)
			}
			if done {
				return
			}
		}
	}
}
