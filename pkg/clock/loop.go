package clock

import (
	"context"
	"sync"
	"time"
)

// EventLoop is the wall clock implementation. Run must be running for any callback to fire.
type EventLoop struct {
	frameInterval time.Duration

	mutex  sync.Mutex
	tasks  []func()
	frames []*frameCallback

	wake chan struct{}
}

func NewEventLoop(frameRate int) *EventLoop {
	return &EventLoop{
		frameInterval: frameInterval(frameRate),
		wake:          make(chan struct{}, 1),
	}
}

func (l *EventLoop) Now() time.Time {
	return time.Now()
}

func (l *EventLoop) ScheduleAfter(d time.Duration, fn func()) Handle {
	handle := &callback{}

	timer := time.AfterFunc(d, func() {
		l.Post(func() {
			if handle.active() {
				fn()
			}
		})
	})
	handle.stop = timer.Stop

	return handle
}

func (l *EventLoop) ScheduleNextFrame(fn func(now time.Time)) Handle {
	handle := &frameCallback{fn: fn}

	l.mutex.Lock()
	l.frames = append(l.frames, handle)
	l.mutex.Unlock()

	return handle
}

func (l *EventLoop) Post(fn func()) {
	l.mutex.Lock()
	l.tasks = append(l.tasks, fn)
	l.mutex.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes callbacks until ctx is cancelled
func (l *EventLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
			l.runTasks()
		case now := <-ticker.C:
			l.runFrame(now)
			l.runTasks()
		}
	}
}

func (l *EventLoop) runTasks() {
	for {
		l.mutex.Lock()
		if len(l.tasks) == 0 {
			l.mutex.Unlock()
			return
		}
		task := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mutex.Unlock()

		task()
	}
}

func (l *EventLoop) runFrame(now time.Time) {
	l.mutex.Lock()
	frames := l.frames
	l.frames = nil
	l.mutex.Unlock()

	for _, frame := range frames {
		if frame.active() {
			frame.fn(now)
		}
	}
}
