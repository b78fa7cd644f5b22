package ctdf

import "math"

// NormaliseHeading wraps a bearing in degrees into [0,360). Non-finite values become 0.
func NormaliseHeading(heading float64) float64 {
	if math.IsNaN(heading) || math.IsInf(heading, 0) {
		return 0
	}

	heading = math.Mod(heading, 360)
	if heading < 0 {
		heading += 360
	}
	if heading >= 360 {
		heading = 0
	}

	return heading
}

// ShortestHeadingDelta is the signed rotation from start to end that never exceeds 180 degrees
func ShortestHeadingDelta(start float64, end float64) float64 {
	delta := NormaliseHeading(end) - NormaliseHeading(start)

	if delta > 180 {
		delta -= 360
	} else if delta < -180 {
		delta += 360
	}

	return delta
}
