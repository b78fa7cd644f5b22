package clock

import (
	"sort"
	"sync"
	"time"
)

// Simulated is a manually driven Clock. Time only moves through Advance, which steps in frame
// sized increments so animations see every frame. Callbacks run on whichever goroutine is
// currently driving the clock, but never two at once.
type Simulated struct {
	frameInterval time.Duration

	mutex   sync.Mutex
	idle    *sync.Cond
	running bool

	now      time.Time
	sequence uint64
	timers   []*simulatedTimer
	frames   []*frameCallback
	tasks    []func()
}

type simulatedTimer struct {
	callback
	due      time.Time
	sequence uint64
	fn       func()
}

func NewSimulated(start time.Time) *Simulated {
	s := &Simulated{
		frameInterval: frameInterval(DefaultFrameRate),
		now:           start,
	}
	s.idle = sync.NewCond(&s.mutex)

	return s
}

func (s *Simulated) FrameInterval() time.Duration {
	return s.frameInterval
}

func (s *Simulated) Now() time.Time {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.now
}

func (s *Simulated) ScheduleAfter(d time.Duration, fn func()) Handle {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.sequence++
	timer := &simulatedTimer{
		due:      s.now.Add(d),
		sequence: s.sequence,
		fn:       fn,
	}
	s.timers = append(s.timers, timer)

	return timer
}

func (s *Simulated) ScheduleNextFrame(fn func(now time.Time)) Handle {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	frame := &frameCallback{fn: fn}
	s.frames = append(s.frames, frame)

	return frame
}

// Post queues fn. If nothing is driving the clock the caller drains the queue itself.
func (s *Simulated) Post(fn func()) {
	s.mutex.Lock()
	s.tasks = append(s.tasks, fn)
	if s.running {
		s.mutex.Unlock()
		return
	}
	s.running = true
	s.mutex.Unlock()

	s.drainAndRelease()
}

// PendingTimers counts timers that are still due to fire
func (s *Simulated) PendingTimers() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	count := 0
	for _, timer := range s.timers {
		if timer.active() {
			count++
		}
	}

	return count
}

// PendingFrames counts frame callbacks waiting for the next frame
func (s *Simulated) PendingFrames() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	count := 0
	for _, frame := range s.frames {
		if frame.active() {
			count++
		}
	}

	return count
}

// Advance moves time forward by d, firing timers and frames as they fall due
func (s *Simulated) Advance(d time.Duration) {
	s.acquire()

	for d > 0 {
		step := s.frameInterval
		if d < step {
			step = d
		}
		d -= step

		s.mutex.Lock()
		s.now = s.now.Add(step)
		s.mutex.Unlock()

		s.fireTimers()
		s.runTasks()
		s.runFrame()
		s.runTasks()
	}

	s.drainAndRelease()
}

func (s *Simulated) acquire() {
	s.mutex.Lock()
	for s.running {
		s.idle.Wait()
	}
	s.running = true
	s.mutex.Unlock()
}

func (s *Simulated) drainAndRelease() {
	for {
		s.mutex.Lock()
		if len(s.tasks) == 0 {
			s.running = false
			s.idle.Broadcast()
			s.mutex.Unlock()
			return
		}
		task := s.popTask()
		s.mutex.Unlock()

		task()
	}
}

func (s *Simulated) runTasks() {
	for {
		s.mutex.Lock()
		if len(s.tasks) == 0 {
			s.mutex.Unlock()
			return
		}
		task := s.popTask()
		s.mutex.Unlock()

		task()
	}
}

func (s *Simulated) popTask() func() {
	task := s.tasks[0]
	s.tasks[0] = nil
	s.tasks = s.tasks[1:]

	return task
}

func (s *Simulated) fireTimers() {
	for {
		s.mutex.Lock()
		var due []*simulatedTimer
		var pending []*simulatedTimer
		for _, timer := range s.timers {
			if !timer.active() {
				continue
			}
			if !timer.due.After(s.now) {
				due = append(due, timer)
			} else {
				pending = append(pending, timer)
			}
		}
		s.timers = pending
		s.mutex.Unlock()

		if len(due) == 0 {
			return
		}

		sort.Slice(due, func(a, b int) bool {
			if due[a].due.Equal(due[b].due) {
				return due[a].sequence < due[b].sequence
			}
			return due[a].due.Before(due[b].due)
		})

		for _, timer := range due {
			if timer.active() {
				timer.fn()
			}
		}
	}
}

func (s *Simulated) runFrame() {
	s.mutex.Lock()
	frames := s.frames
	s.frames = nil
	now := s.now
	s.mutex.Unlock()

	for _, frame := range frames {
		if frame.active() {
			frame.fn(now)
		}
	}
}
