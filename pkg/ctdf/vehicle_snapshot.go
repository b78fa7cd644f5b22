package ctdf

import (
	"sort"
	"time"

	"github.com/travigo/livemap/pkg/util"
)

// VehicleSnapshot is published once per refresh cycle
type VehicleSnapshot struct {
	GeneratedAt time.Time

	// Latest known report for every vehicle currently tracked
	Vehicles map[string]*VehicleState

	// Vehicles that were reported in this cycle
	Updated []string

	// Explicitly tracked vehicles the feed had no data for this cycle
	Missing []string
}

// Ordered returns the vehicles sorted by route then id, numbers compared numerically
func (s *VehicleSnapshot) Ordered() []*VehicleState {
	vehicles := make([]*VehicleState, 0, len(s.Vehicles))
	for _, vehicle := range s.Vehicles {
		vehicles = append(vehicles, vehicle)
	}

	SortVehicles(vehicles)

	return vehicles
}

func SortVehicles(vehicles []*VehicleState) {
	sort.SliceStable(vehicles, func(a, b int) bool {
		if vehicles[a].RouteTag == vehicles[b].RouteTag {
			return util.NaturalLess(vehicles[a].ID, vehicles[b].ID)
		}
		return util.NaturalLess(vehicles[a].RouteTag, vehicles[b].RouteTag)
	})
}
