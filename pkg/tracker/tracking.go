package tracker

import (
	"github.com/rs/zerolog/log"
	"github.com/travigo/livemap/pkg/animator"
	"github.com/travigo/livemap/pkg/util"
	"golang.org/x/exp/slices"
)

// AddVehicle tracks a vehicle and seeds its position without waiting for the next poll.
// Returns false if it was already tracked.
func (c *Coordinator) AddVehicle(id string) bool {
	if id == "" || slices.Contains(c.vehicles, id) {
		return false
	}

	c.vehicles = append(c.vehicles, id)

	if c.Mode() == ModeRoutes {
		c.pruneNonMembers()
	}

	c.seed(id)
	c.ensurePolling()

	return true
}

// RemoveVehicle stops tracking a vehicle, suspending polling when nothing is left
func (c *Coordinator) RemoveVehicle(id string) bool {
	index := slices.Index(c.vehicles, id)
	if index < 0 {
		return false
	}

	c.vehicles = slices.Delete(c.vehicles, index, index+1)

	if c.Mode() == ModeRoutes && len(c.vehicles) == 0 {
		// Dropping the last vehicle filter brings back the rest of the routes
		c.Refresh(false)
	} else {
		c.removeEntity(id)
	}

	if !c.tracking() {
		c.cancelPoll()
	}

	return true
}

// ReplaceVehicles applies the difference between ids and the tracked set, leaving vehicles
// present in both untouched
func (c *Coordinator) ReplaceVehicles(ids []string) (added []string, removed []string) {
	ids = util.RemoveDuplicateStrings(ids, nil)

	for _, id := range util.Difference(c.vehicles, ids) {
		if c.RemoveVehicle(id) {
			removed = append(removed, id)
		}
	}

	for _, id := range util.Difference(ids, c.vehicles) {
		if c.AddVehicle(id) {
			added = append(added, id)
		}
	}

	return added, removed
}

// SetRoutes switches the route set. Any vehicle filter is cleared and a clearing refresh is
// run. Returns false when the routes are unchanged.
func (c *Coordinator) SetRoutes(routes []string) bool {
	routes = util.RemoveDuplicateStrings(routes, nil)

	if sameMembers(routes, c.routes) {
		return false
	}

	c.routes = routes
	c.vehicles = nil

	log.Info().Strs("routes", routes).Msg("Route filter changed")

	c.Refresh(true)

	return true
}

func (c *Coordinator) seed(id string) {
	if !c.started {
		return
	}

	epoch := c.epoch
	launched := c.begun
	ctx := c.ctx

	go func() {
		batch, err := c.feed.FetchByIDs(ctx, []string{id})

		c.clock.Post(func() {
			// A refresh that started after this seed already knows better
			if epoch != c.epoch || c.applied > launched {
				return
			}
			if err != nil {
				log.Debug().Err(err).Str("vehicle", id).Msg("Failed to seed vehicle position")
				return
			}
			if _, exists := c.entities[id]; exists || !slices.Contains(c.vehicles, id) {
				return
			}

			for _, vehicle := range batch.Vehicles {
				if vehicle == nil || vehicle.ID != id || vehicle.Validate() != nil {
					continue
				}
				if !c.isMember(vehicle) || !c.filter.Match(vehicle) {
					return
				}

				entity := animator.NewEntity(id, vehicle.Pose(), c.clock, c.render, c.config.Animation)
				entity.SetVehicle(vehicle)
				c.entities[id] = entity

				return
			}
		})
	}()
}

func sameMembers(a []string, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	return len(util.Difference(a, b)) == 0
}
