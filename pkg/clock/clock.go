// Package clock provides the single logical execution context that the animator and the refresh
// coordinator run on. Every timer, frame and posted callback of one Clock runs one at a time, so
// state owned by those callbacks needs no locking.
package clock

import (
	"sync/atomic"
	"time"
)

const DefaultFrameRate = 60

type Clock interface {
	Now() time.Time

	// ScheduleAfter runs fn once after d has elapsed
	ScheduleAfter(d time.Duration, fn func()) Handle

	// ScheduleNextFrame runs fn on the next rendering frame. Callbacks registered while a frame
	// is running are deferred to the following frame.
	ScheduleNextFrame(fn func(now time.Time)) Handle

	// Post runs fn on the execution context as soon as possible. It is the only method that is
	// safe to call from outside the execution context.
	Post(fn func())
}

// Handle cancels a scheduled callback. Cancelling from the execution context guarantees the
// callback will not run afterwards.
type Handle interface {
	Cancel()
}

type callback struct {
	cancelled atomic.Bool
	stop      func() bool
}

func (c *callback) Cancel() {
	c.cancelled.Store(true)
	if c.stop != nil {
		c.stop()
	}
}

func (c *callback) active() bool {
	return !c.cancelled.Load()
}

type frameCallback struct {
	callback
	fn func(now time.Time)
}

func frameInterval(frameRate int) time.Duration {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}

	return time.Second / time.Duration(frameRate)
}
