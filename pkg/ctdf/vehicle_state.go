package ctdf

import (
	"math"
	"time"
)

// MaxSecsSinceReport caps the age a report can claim, anything older is treated as a week old
const MaxSecsSinceReport = 7 * 24 * 60 * 60

// ClampSecsSinceReport converts a reported age in seconds, treating negative or malformed ages as fresh
func ClampSecsSinceReport(secs float64) int {
	if math.IsNaN(secs) || secs < 0 {
		return 0
	}
	if secs > MaxSecsSinceReport {
		return MaxSecsSinceReport
	}

	return int(secs)
}

// VehicleState is a single feed report for a vehicle. A newer report replaces it, it is never mutated.
type VehicleState struct {
	ID       string `json:"id" groups:"basic" csv:"id"`
	RouteTag string `json:"route_tag" groups:"basic" csv:"route_tag"`

	Heading  float64  `json:"heading" groups:"basic" csv:"heading"`
	Location Location `json:"location" groups:"basic" csv:"-"`

	Predictable     bool    `json:"predictable" groups:"detailed" csv:"predictable"`
	SecsSinceReport int     `json:"secs_since_report" groups:"detailed" csv:"secs_since_report"`
	Speed           float64 `json:"speed" groups:"detailed" csv:"speed_kmh"`

	RecordedAt time.Time `json:"recorded_at" groups:"detailed" csv:"recorded_at"`
	DataSource string    `json:"datasource" groups:"detailed" csv:"datasource"`
}

func (v *VehicleState) Validate() error {
	if !v.Location.IsValid() {
		return ErrInvalidLocation
	}

	return nil
}

func (v *VehicleState) Pose() Pose {
	return Pose{
		Location: v.Location,
		Heading:  NormaliseHeading(v.Heading),
	}
}

// StaleFor is how long before now the vehicle last reported its position
func (v *VehicleState) StaleFor(now time.Time) time.Duration {
	return now.Sub(v.RecordedAt)
}

// VehicleBatch is the result of a single feed request
type VehicleBatch struct {
	Vehicles []*VehicleState

	// Route tags or vehicle ids whose individual lookup failed. Their vehicles are unknown
	// this cycle rather than gone.
	FailedKeys []string

	// Opaque token handed back to the next incremental request
	ContinuationToken string
}
