package tracker

import (
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livemap/pkg/clock"
	"github.com/travigo/livemap/pkg/ctdf"
	"golang.org/x/exp/slices"
)

// Manager is the goroutine safe front of a Coordinator. Every call is run on the clock's
// execution context and waits for it to finish, so it must not be used from inside a clock
// callback.
type Manager struct {
	clock       clock.Clock
	coordinator *Coordinator
}

func NewManager(c clock.Clock, coordinator *Coordinator) *Manager {
	return &Manager{
		clock:       c,
		coordinator: coordinator,
	}
}

func (m *Manager) call(fn func()) {
	done := make(chan struct{})

	m.clock.Post(func() {
		defer close(done)
		fn()
	})

	<-done
}

func (m *Manager) Start() {
	m.call(m.coordinator.Start)
}

func (m *Manager) Stop() {
	m.call(m.coordinator.Stop)
}

// Add tracks a vehicle id, returning false if it was already tracked
func (m *Manager) Add(id string) bool {
	var added bool
	m.call(func() {
		added = m.coordinator.AddVehicle(id)
	})

	return added
}

func (m *Manager) Remove(id string) bool {
	var removed bool
	m.call(func() {
		removed = m.coordinator.RemoveVehicle(id)
	})

	return removed
}

// Replace makes ids the tracked set, returning what was added and removed
func (m *Manager) Replace(ids []string) ([]string, []string) {
	var added, removed []string
	m.call(func() {
		added, removed = m.coordinator.ReplaceVehicles(ids)
	})

	return added, removed
}

// SetRouteFilter follows every vehicle on routes, clearing any vehicle filter
func (m *Manager) SetRouteFilter(routes []string) bool {
	var changed bool
	m.call(func() {
		changed = m.coordinator.SetRoutes(routes)
	})

	return changed
}

func (m *Manager) Refresh(clearFirst bool) *Completion {
	var completion *Completion
	m.call(func() {
		completion = m.coordinator.Refresh(clearFirst)
	})

	return completion
}

func (m *Manager) Tracked() []string {
	var tracked []string
	m.call(func() {
		tracked = m.coordinator.Vehicles()
	})

	return tracked
}

func (m *Manager) Routes() []string {
	var routes []string
	m.call(func() {
		routes = m.coordinator.Routes()
	})

	return routes
}

func (m *Manager) Mode() Mode {
	var mode Mode
	m.call(func() {
		mode = m.coordinator.Mode()
	})

	return mode
}

// Snapshot returns a copy of the latest vehicle snapshot that the caller may keep
func (m *Manager) Snapshot() *ctdf.VehicleSnapshot {
	var snapshot *ctdf.VehicleSnapshot
	m.call(func() {
		snapshot = copySnapshot(m.coordinator.Snapshot())
	})

	return snapshot
}

// Vehicle returns a copy of the latest report for a vehicle currently on the map
func (m *Manager) Vehicle(id string) (*ctdf.VehicleState, bool) {
	var vehicle *ctdf.VehicleState
	m.call(func() {
		if entity, ok := m.coordinator.Entity(id); ok && entity.Vehicle() != nil {
			vehicle = copyVehicle(entity.Vehicle())
		}
	})

	return vehicle, vehicle != nil
}

// Pose is where the vehicle is currently drawn
func (m *Manager) Pose(id string) (ctdf.Pose, bool) {
	var pose ctdf.Pose
	var ok bool
	m.call(func() {
		entity, exists := m.coordinator.Entity(id)
		if exists {
			ok = true
			pose = entity.Pose()
			pose.Location.Coordinates = slices.Clone(pose.Location.Coordinates)
		}
	})

	return pose, ok
}

func copySnapshot(snapshot *ctdf.VehicleSnapshot) *ctdf.VehicleSnapshot {
	copied := &ctdf.VehicleSnapshot{
		GeneratedAt: snapshot.GeneratedAt,
		Vehicles:    make(map[string]*ctdf.VehicleState, len(snapshot.Vehicles)),
		Updated:     slices.Clone(snapshot.Updated),
		Missing:     slices.Clone(snapshot.Missing),
	}

	for id, vehicle := range snapshot.Vehicles {
		copied.Vehicles[id] = copyVehicle(vehicle)
	}

	return copied
}

func copyVehicle(vehicle *ctdf.VehicleState) *ctdf.VehicleState {
	copied := &ctdf.VehicleState{}
	if err := copier.Copy(copied, vehicle); err != nil {
		log.Error().Err(err).Str("vehicle", vehicle.ID).Msg("Failed to copy vehicle")
		return vehicle
	}
	copied.Location.Coordinates = slices.Clone(vehicle.Location.Coordinates)

	return copied
}
