package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := NewEventLoop(120)
	go loop.Run(ctx)

	t.Run("post", func(t *testing.T) {
		done := make(chan struct{})
		loop.Post(func() { close(done) })

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("posted callback did not run")
		}
	})

	t.Run("schedule after", func(t *testing.T) {
		fired := make(chan time.Time, 1)
		start := time.Now()
		loop.ScheduleAfter(20*time.Millisecond, func() { fired <- time.Now() })

		select {
		case at := <-fired:
			assert.GreaterOrEqual(t, at.Sub(start), 20*time.Millisecond)
		case <-time.After(time.Second):
			t.Fatal("timer did not fire")
		}
	})

	t.Run("cancelled timer", func(t *testing.T) {
		fired := make(chan struct{}, 1)
		handle := loop.ScheduleAfter(10*time.Millisecond, func() { fired <- struct{}{} })
		handle.Cancel()

		select {
		case <-fired:
			t.Fatal("cancelled timer fired")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("frames", func(t *testing.T) {
		frames := make(chan time.Time, 1)
		loop.ScheduleNextFrame(func(now time.Time) { frames <- now })

		select {
		case now := <-frames:
			require.False(t, now.IsZero())
		case <-time.After(time.Second):
			t.Fatal("frame callback did not run")
		}
	})
}
