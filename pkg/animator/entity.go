package animator

import (
	"time"

	"github.com/travigo/livemap/pkg/clock"
	"github.com/travigo/livemap/pkg/ctdf"
	"github.com/travigo/livemap/pkg/render"
)

// Entity animates one vehicle. All methods must be called from the clock's execution context.
type Entity struct {
	id     string
	clock  clock.Clock
	sink   render.RenderSink
	config Config

	vehicle *ctdf.VehicleState

	pose   ctdf.Pose
	start  ctdf.Pose
	target ctdf.Pose

	animationStart time.Time
	duration       time.Duration
	animating      bool
	frame          clock.Handle

	queue []Frame

	removed bool
}

// NewEntity places the vehicle at its initial pose and tells the sink about it
func NewEntity(id string, initial ctdf.Pose, c clock.Clock, sink render.RenderSink, config Config) *Entity {
	if sink == nil {
		sink = render.Discard{}
	}

	initial.Heading = ctdf.NormaliseHeading(initial.Heading)

	e := &Entity{
		id:     id,
		clock:  c,
		sink:   sink,
		config: config,
		pose:   initial,
		target: initial,
	}

	sink.OnEntityAdded(id, initial)

	return e
}

func (e *Entity) ID() string {
	return e.id
}

func (e *Entity) Pose() ctdf.Pose {
	return e.pose
}

func (e *Entity) Animating() bool {
	return e.animating
}

func (e *Entity) QueueLength() int {
	return len(e.queue)
}

func (e *Entity) Removed() bool {
	return e.removed
}

// Vehicle is the latest feed report applied to this entity
func (e *Entity) Vehicle() *ctdf.VehicleState {
	return e.vehicle
}

func (e *Entity) SetVehicle(vehicle *ctdf.VehicleState) {
	e.vehicle = vehicle
}

// Enqueue buffers a frame. Playback starts once more than LagDepth frames are waiting and
// the oldest frames are dropped when the queue is full.
func (e *Entity) Enqueue(frame Frame) error {
	if e.removed {
		return ErrEntityRemoved
	}
	if !frame.Location.IsValid() {
		return ErrInvalidFrame
	}

	frame.Heading = ctdf.NormaliseHeading(frame.Heading)
	e.queue = append(e.queue, frame)

	if overflow := len(e.queue) - e.config.queueLimit(); overflow > 0 {
		e.queue = append(e.queue[:0], e.queue[overflow:]...)
	}

	if !e.animating && len(e.queue) > e.config.LagDepth {
		e.startNext()
	}

	return nil
}

// Remove cancels the running animation, drops queued frames and detaches from the sink
func (e *Entity) Remove() {
	if e.removed {
		return
	}
	e.removed = true

	e.cancelFrame()
	e.queue = nil
	e.animating = false

	e.sink.OnEntityRemoved(e.id)
}

func (e *Entity) startNext() {
	for len(e.queue) > 0 {
		next := e.queue[0]
		e.queue = append(e.queue[:0], e.queue[1:]...)

		target := next.pose()
		if e.pose.Near(target) {
			e.pose = target
			e.target = target
			e.sink.OnEntityPoseChanged(e.id, e.pose)
			continue
		}

		e.start = e.pose
		e.target = target
		e.duration = next.Duration
		if e.duration < e.config.MinFrameDuration {
			e.duration = e.config.MinFrameDuration
		}
		e.animationStart = e.clock.Now()
		e.animating = true
		e.frame = e.clock.ScheduleNextFrame(e.tick)

		return
	}

	e.animating = false
}

func (e *Entity) tick(now time.Time) {
	e.frame = nil
	if e.removed || !e.animating {
		return
	}

	progress := Progress(now.Sub(e.animationStart), e.duration)
	if progress >= 1 {
		e.pose = e.target
		e.sink.OnEntityPoseChanged(e.id, e.pose)

		e.animating = false
		e.startNext()
		return
	}

	e.pose = Interpolate(e.start, e.target, progress)
	e.sink.OnEntityPoseChanged(e.id, e.pose)

	e.frame = e.clock.ScheduleNextFrame(e.tick)
}

func (e *Entity) cancelFrame() {
	if e.frame != nil {
		e.frame.Cancel()
		e.frame = nil
	}
}
