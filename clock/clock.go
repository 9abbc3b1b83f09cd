// Package clock paces frame production for drivers that are not paced by hardware.
package clock

import (
	"time"

	bclock "github.com/benbjohnson/clock"
)

// FrameClock hands out frame numbers at a fixed interval.
type FrameClock struct {
	clk      bclock.Clock
	interval time.Duration

	last  time.Time
	frame int64
}

// NewFrameClock returns a clock producing one frame per interval. A zero interval never
// blocks.
func NewFrameClock(clk bclock.Clock, interval time.Duration) *FrameClock {
	if clk == nil {
		clk = bclock.New()
	}

	return &FrameClock{
		clk:      clk,
		interval: interval,
	}
}

// Interval returns the frame interval.
func (c *FrameClock) Interval() time.Duration {
	return c.interval
}

// Frame returns the number of the last frame handed out.
func (c *FrameClock) Frame() int64 {
	return c.frame
}

// Reset forgets the previous frame so the next Wait returns immediately.
func (c *FrameClock) Reset() {
	c.last = time.Time{}
	c.frame = 0
}

// Wait blocks until the next frame is due and returns its number. When the caller falls
// behind by more than one interval, frames are dropped rather than delivered in a burst.
func (c *FrameClock) Wait() int64 {
	now := c.clk.Now()

	if c.interval > 0 && !c.last.IsZero() {
		next := c.last.Add(c.interval)
		if d := next.Sub(now); d > 0 {
			c.clk.Sleep(d)
			now = next
		}
	}

	c.last = now
	c.frame++

	return c.frame
}
