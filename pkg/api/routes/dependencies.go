package routes

import (
	"context"

	"github.com/travigo/livemap/pkg/ctdf"
	"github.com/travigo/livemap/pkg/nextbus"
	"github.com/travigo/livemap/pkg/spatial"
	"github.com/travigo/livemap/pkg/tracker"
)

// Tracker is the tracking set the API reads and edits, satisfied by *tracker.Manager
type Tracker interface {
	Snapshot() *ctdf.VehicleSnapshot
	Vehicle(id string) (*ctdf.VehicleState, bool)
	Pose(id string) (ctdf.Pose, bool)

	Mode() tracker.Mode
	Routes() []string
	Tracked() []string

	Add(id string) bool
	Remove(id string) bool
	Replace(ids []string) ([]string, []string)
	SetRouteFilter(routes []string) bool
	Refresh(clearFirst bool) *tracker.Completion
}

type RouteLister interface {
	Routes(ctx context.Context) ([]nextbus.Route, error)
}

type BoundsIndex interface {
	Within(bounds spatial.Bounds) ([]*ctdf.VehicleState, error)
	Nearest(latitude float64, longitude float64, k int) []*ctdf.VehicleState
}
