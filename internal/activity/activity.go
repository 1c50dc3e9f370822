// Package activity owns suspension and termination of agent loops. The
// reasoning cycle only requests pause, sleep and stop; controllers enact
// them at cycle boundaries and provide the time each cycle reads.
package activity

import (
	"context"
	"sync"
	"time"
)

// Time is a logical tick count or elapsed milliseconds, depending on the
// controller.
type Time int64

// Controller receives control requests from a running agent.
type Controller interface {
	CurrentTime() Time
	Pause()
	Resume()
	Sleep(d time.Duration)
	Stop()
	IsStopped() bool
}

// ThreadController drives an agent on its own goroutine in real time.
type ThreadController struct {
	mu       sync.Mutex
	start    time.Time
	stopped  bool
	paused   bool
	sleep    time.Duration
	resumeCh chan struct{}
}

// NewThreadController creates a controller whose clock starts now.
func NewThreadController() *ThreadController {
	return &ThreadController{start: time.Now(), resumeCh: make(chan struct{})}
}

// CurrentTime returns the milliseconds elapsed since creation.
func (c *ThreadController) CurrentTime() Time {
	return Time(time.Since(c.start).Milliseconds())
}

// Pause suspends the loop at the next boundary until Resume.
func (c *ThreadController) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// Resume releases a paused loop.
func (c *ThreadController) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	close(c.resumeCh)
	c.resumeCh = make(chan struct{})
}

// Sleep suspends the loop for d at the next boundary. Requests accumulate.
func (c *ThreadController) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleep += d
}

// Stop terminates the loop at the next boundary.
func (c *ThreadController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.paused {
		c.paused = false
		close(c.resumeCh)
		c.resumeCh = make(chan struct{})
	}
}

// IsStopped reports whether Stop was requested.
func (c *ThreadController) IsStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// IsPaused reports whether the loop is paused.
func (c *ThreadController) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Await enacts pending sleep and pause requests. It returns ctx.Err() if the
// context ends first.
func (c *ThreadController) Await(ctx context.Context) error {
	c.mu.Lock()
	d := c.sleep
	c.sleep = 0
	c.mu.Unlock()

	if d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	for {
		c.mu.Lock()
		if !c.paused || c.stopped {
			c.mu.Unlock()
			return nil
		}
		ch := c.resumeCh
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}
