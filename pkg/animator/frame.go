package animator

import (
	"errors"
	"time"

	"github.com/travigo/livemap/pkg/ctdf"
)

var (
	ErrInvalidFrame  = errors.New("animation frame has a non-finite position")
	ErrEntityRemoved = errors.New("entity has been removed")
)

// Frame is one motion target for an entity
type Frame struct {
	Location ctdf.Location
	Heading  float64
	Duration time.Duration
}

func (f Frame) pose() ctdf.Pose {
	return ctdf.Pose{
		Location: f.Location,
		Heading:  ctdf.NormaliseHeading(f.Heading),
	}
}

// Progress is the clamped [0,1] fraction of duration covered by elapsed
func Progress(elapsed time.Duration, duration time.Duration) float64 {
	if duration <= 0 {
		return 1
	}

	progress := float64(elapsed) / float64(duration)
	if progress < 0 {
		return 0
	}
	if progress > 1 {
		return 1
	}

	return progress
}

// Interpolate returns the pose at progress between start and end, rotating along the shortest arc
func Interpolate(start ctdf.Pose, end ctdf.Pose, progress float64) ctdf.Pose {
	startHeading := ctdf.NormaliseHeading(start.Heading)
	delta := ctdf.ShortestHeadingDelta(startHeading, end.Heading)

	return ctdf.Pose{
		Location: start.Location.Interpolate(end.Location, progress),
		Heading:  ctdf.NormaliseHeading(startHeading + delta*progress),
	}
}
