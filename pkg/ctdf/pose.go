package ctdf

import "math"

const (
	PoseLocationEpsilonMeters = 0.05
	PoseHeadingEpsilon        = 0.01
)

// Pose is what a render sink draws for a vehicle on a given frame
type Pose struct {
	Location Location `json:"location"`
	Heading  float64  `json:"heading"`
}

// Near reports whether two poses are indistinguishable on screen
func (p Pose) Near(other Pose) bool {
	if !p.Location.IsValid() || !other.Location.IsValid() {
		return false
	}

	if math.Abs(ShortestHeadingDelta(p.Heading, other.Heading)) > PoseHeadingEpsilon {
		return false
	}

	return p.Location.DistanceTo(other.Location) <= PoseLocationEpsilonMeters
}
