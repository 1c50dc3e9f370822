package activity

import (
	"sync"
	"time"
)

// DefaultTickDuration maps sleep requests onto ticks when none is configured.
const DefaultTickDuration = time.Millisecond

// Clock is the logical time shared by every agent of a stepped run.
type Clock struct {
	mu  sync.RWMutex
	now Time
}

// NewClock starts a clock at tick zero.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current tick.
func (c *Clock) Now() Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Advance moves the clock one tick forward and returns the new tick.
func (c *Clock) Advance() Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now++
	return c.now
}

// SteppedController runs an agent against a shared Clock. Sleep skips the
// ticks covering the duration; Pause skips ticks until Resume.
type SteppedController struct {
	clock        *Clock
	tickDuration time.Duration

	mu         sync.Mutex
	stopped    bool
	paused     bool
	sleepUntil Time
}

// NewSteppedController binds a controller to clock. A non-positive
// tickDuration means DefaultTickDuration.
func NewSteppedController(clock *Clock, tickDuration time.Duration) *SteppedController {
	if tickDuration <= 0 {
		tickDuration = DefaultTickDuration
	}
	return &SteppedController{clock: clock, tickDuration: tickDuration}
}

// CurrentTime returns the shared tick.
func (c *SteppedController) CurrentTime() Time {
	return c.clock.Now()
}

// Pause skips every tick until Resume.
func (c *SteppedController) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// Resume ends a pause.
func (c *SteppedController) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

// Sleep skips the ticks needed to cover d, at least one.
func (c *SteppedController) Sleep(d time.Duration) {
	ticks := Time(d / c.tickDuration)
	if d%c.tickDuration != 0 {
		ticks++
	}
	if ticks < 1 {
		ticks = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	until := c.clock.Now() + ticks + 1
	if until > c.sleepUntil {
		c.sleepUntil = until
	}
}

// IsPaused reports whether the agent waits for Resume.
func (c *SteppedController) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Stop removes the agent from every later tick.
func (c *SteppedController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
}

// IsStopped reports whether Stop was requested.
func (c *SteppedController) IsStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Ready reports whether the agent runs a cycle on the current tick.
func (c *SteppedController) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.stopped && !c.paused && c.clock.Now() >= c.sleepUntil
}
