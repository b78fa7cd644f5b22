package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/livemap/pkg/animator"
	"github.com/travigo/livemap/pkg/clock"
	"github.com/travigo/livemap/pkg/ctdf"
	"github.com/travigo/livemap/pkg/render"
	"golang.org/x/exp/slices"
)

var ErrStopped = errors.New("refresh coordinator is not running")

// Mode decides what happens to vehicles that stop appearing in the feed
type Mode string

const (
	// ModeRoutes follows every vehicle on a set of routes. Vehicles missing from a refresh are dropped.
	ModeRoutes Mode = "routes"

	// ModeVehicles follows explicitly tracked vehicles. Missing vehicles stay tracked and are
	// reported as having no data.
	ModeVehicles Mode = "vehicles"
)

type State int

const (
	StateIdle State = iota
	StateFetching
	StateApplying
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateApplying:
		return "applying"
	default:
		return "idle"
	}
}

type Options struct {
	Clock    clock.Clock
	Feed     Feed
	Render   render.RenderSink
	Status   render.StatusSink
	Observer CycleObserver
	Config   Config
}

// Coordinator polls the feed and keeps one animated entity per visible vehicle. Apart from
// NewCoordinator every method must be called from the clock's execution context, Manager
// provides the goroutine safe API.
type Coordinator struct {
	clock    clock.Clock
	feed     Feed
	render   render.RenderSink
	status   render.StatusSink
	observer CycleObserver

	config      Config
	minDuration time.Duration
	maxDuration time.Duration
	filter      *vehicleFilter

	routes   []string
	vehicles []string
	entities map[string]*animator.Entity
	snapshot *ctdf.VehicleSnapshot

	started bool
	epoch   uint64
	ctx     context.Context
	cancel  context.CancelFunc

	state              State
	inFlight           *Completion
	supersedeRequested bool
	lastRefresh        time.Time
	token              string
	pollTimer          clock.Handle

	// Sequence numbers of the last refresh begun and the last one applied
	begun   uint64
	applied uint64

	cycle Cycle
}

func NewCoordinator(options Options) (*Coordinator, error) {
	if options.Clock == nil {
		return nil, errors.New("coordinator requires a clock")
	}
	if options.Feed == nil {
		return nil, errors.New("coordinator requires a feed")
	}
	if options.Render == nil {
		options.Render = render.Discard{}
	}
	if options.Status == nil {
		options.Status = render.Discard{}
	}
	if options.Config.PollInterval <= 0 {
		options.Config.PollInterval = DefaultConfig().PollInterval
	}

	filter, err := compileFilter(options.Config.FilterExpression)
	if err != nil {
		return nil, err
	}

	minDuration, maxDuration := options.Config.durationBounds()

	return &Coordinator{
		clock:       options.Clock,
		feed:        options.Feed,
		render:      options.Render,
		status:      options.Status,
		observer:    options.Observer,
		config:      options.Config,
		minDuration: minDuration,
		maxDuration: maxDuration,
		filter:      filter,
		entities:    map[string]*animator.Entity{},
		snapshot: &ctdf.VehicleSnapshot{
			Vehicles: map[string]*ctdf.VehicleState{},
		},
	}, nil
}

func (c *Coordinator) Mode() Mode {
	if len(c.routes) > 0 {
		return ModeRoutes
	}
	return ModeVehicles
}

func (c *Coordinator) State() State {
	return c.state
}

func (c *Coordinator) Routes() []string {
	return slices.Clone(c.routes)
}

// Vehicles is the explicitly tracked set, which acts as a vehicle filter in route mode
func (c *Coordinator) Vehicles() []string {
	return slices.Clone(c.vehicles)
}

func (c *Coordinator) Snapshot() *ctdf.VehicleSnapshot {
	return c.snapshot
}

func (c *Coordinator) Entity(id string) (*animator.Entity, bool) {
	entity, ok := c.entities[id]
	return entity, ok
}

func (c *Coordinator) Polling() bool {
	return c.pollTimer != nil
}

func (c *Coordinator) tracking() bool {
	return len(c.routes) > 0 || len(c.vehicles) > 0
}

// Start begins polling straight away if anything is tracked
func (c *Coordinator) Start() {
	if c.started {
		return
	}

	c.started = true
	c.epoch++
	c.ctx, c.cancel = context.WithCancel(context.Background())

	log.Info().Str("mode", string(c.Mode())).Strs("routes", c.routes).Strs("vehicles", c.vehicles).Msg("Starting vehicle refresh")

	if c.tracking() {
		c.Refresh(false)
	}
}

// Stop cancels polling and any fetch in flight, and detaches every entity
func (c *Coordinator) Stop() {
	if !c.started {
		return
	}

	c.started = false
	c.epoch++
	c.cancel()
	c.cancelPoll()
	c.supersedeRequested = false

	if c.inFlight != nil {
		completion := c.inFlight
		c.inFlight = nil
		c.state = StateIdle
		completion.resolve(ErrStopped)
	}

	c.detachAll()

	log.Info().Msg("Stopped vehicle refresh")
}

// Refresh starts a refresh unless one is already running. A clearing request made while one
// is running is coalesced into a single clearing refresh that runs straight after it, and the
// returned Completion covers both.
func (c *Coordinator) Refresh(clearFirst bool) *Completion {
	if c.inFlight != nil {
		if clearFirst {
			c.supersedeRequested = true
		}
		return c.inFlight
	}

	if !c.started {
		return CompletedWith(ErrStopped)
	}

	completion := newCompletion()

	c.inFlight = completion
	c.begin(clearFirst)

	return completion
}

func (c *Coordinator) begin(clearFirst bool) {
	c.cancelPoll()
	c.state = StateFetching
	c.begun++
	sequence := c.begun
	c.cycle = Cycle{
		StartedAt: c.clock.Now(),
		Mode:      c.Mode(),
		Cleared:   clearFirst,
	}

	if clearFirst {
		c.detachAll()
		c.token = ""
	}

	request := fetchRequest{
		mode:        c.Mode(),
		incremental: c.config.Incremental,
		routes:      slices.Clone(c.routes),
		vehicles:    slices.Clone(c.vehicles),
		token:       c.token,
	}

	if request.empty() {
		c.apply(sequence, request, &ctdf.VehicleBatch{}, nil)
		return
	}

	epoch := c.epoch
	ctx := c.ctx

	go func() {
		batch, err := request.fetch(ctx, c.feed)

		c.clock.Post(func() {
			if epoch != c.epoch || c.inFlight == nil {
				return
			}
			c.apply(sequence, request, batch, err)
		})
	}()
}

func (c *Coordinator) apply(sequence uint64, request fetchRequest, batch *ctdf.VehicleBatch, err error) {
	c.state = StateApplying
	c.applied = sequence
	now := c.clock.Now()

	if batch != nil {
		c.cycle.FailedKeys = batch.FailedKeys
	}

	if err != nil || batch == nil {
		if err == nil {
			err = errors.New("feed returned no batch")
		}

		log.Error().Err(err).Str("mode", string(request.mode)).Msg("Vehicle refresh failed")
		c.cycle.Err = err
		c.publish(now, nil, c.snapshot.Missing)
	} else {
		c.applyBatch(request, batch, now)
	}

	c.finish(now)
}

func (c *Coordinator) applyBatch(request fetchRequest, batch *ctdf.VehicleBatch, now time.Time) {
	base := baseDuration(now, c.lastRefresh, c.minDuration, c.maxDuration)
	c.lastRefresh = now
	if request.incremental {
		c.token = batch.ContinuationToken
	}

	var updated []string
	seen := map[string]bool{}

	for _, vehicle := range batch.Vehicles {
		if vehicle == nil || vehicle.Validate() != nil || seen[vehicle.ID] {
			continue
		}
		if !c.isMember(vehicle) || !c.filter.Match(vehicle) {
			continue
		}

		seen[vehicle.ID] = true
		updated = append(updated, vehicle.ID)

		entity, exists := c.entities[vehicle.ID]
		if !exists {
			entity = animator.NewEntity(vehicle.ID, vehicle.Pose(), c.clock, c.render, c.config.Animation)
			entity.SetVehicle(vehicle)
			c.entities[vehicle.ID] = entity
			continue
		}

		entity.SetVehicle(vehicle)

		err := entity.Enqueue(animator.Frame{
			Location: vehicle.Location,
			Heading:  vehicle.Heading,
			Duration: frameDuration(base, vehicle.SecsSinceReport, c.minDuration, c.maxDuration),
		})
		if err != nil {
			log.Debug().Err(err).Str("vehicle", vehicle.ID).Msg("Dropped animation frame")
		}
	}

	failed := map[string]bool{}
	for _, key := range batch.FailedKeys {
		failed[key] = true
	}

	for id, entity := range c.entities {
		if seen[id] {
			continue
		}

		if request.incremental {
			if c.config.StaleAfter > 0 && entity.Vehicle().StaleFor(now) > c.config.StaleAfter {
				c.removeEntity(id)
			}
			continue
		}

		if request.mode == ModeRoutes && failed[entity.Vehicle().RouteTag] {
			continue
		}
		if request.mode == ModeVehicles && (failed[id] || !slices.Contains(request.vehicles, id)) {
			// Seeded after this request was made
			continue
		}

		c.removeEntity(id)
	}

	var missing []string
	if request.mode == ModeVehicles {
		for _, id := range c.vehicles {
			if !seen[id] && !failed[id] && slices.Contains(request.vehicles, id) {
				if _, visible := c.entities[id]; !visible {
					missing = append(missing, id)
				}
			}
		}
	}

	c.publish(now, updated, missing)
}

func (c *Coordinator) publish(now time.Time, updated []string, missing []string) {
	snapshot := &ctdf.VehicleSnapshot{
		GeneratedAt: now,
		Vehicles:    make(map[string]*ctdf.VehicleState, len(c.entities)),
		Updated:     updated,
		Missing:     missing,
	}
	for id, entity := range c.entities {
		snapshot.Vehicles[id] = entity.Vehicle()
	}

	c.snapshot = snapshot
	c.status.OnSnapshotUpdated(snapshot)

	c.cycle.Vehicles = len(snapshot.Vehicles)
	c.cycle.Updated = len(updated)
	c.cycle.Missing = len(snapshot.Missing)
}

func (c *Coordinator) finish(now time.Time) {
	c.state = StateIdle
	c.cycle.FinishedAt = now

	cycle := c.cycle
	log.Debug().
		Str("mode", string(cycle.Mode)).
		Bool("cleared", cycle.Cleared).
		Int("vehicles", cycle.Vehicles).
		Int("updated", cycle.Updated).
		Int("removed", cycle.Removed).
		Int("missing", cycle.Missing).
		Msg("Vehicle refresh complete")

	if c.observer != nil {
		c.observer.OnRefreshCycle(cycle)
	}

	if c.supersedeRequested {
		c.supersedeRequested = false
		c.begin(true)
		return
	}

	completion := c.inFlight
	c.inFlight = nil
	c.scheduleNext()

	if completion != nil {
		completion.resolve(cycle.Err)
	}
}

// scheduleNext arms the poll timer, leaving polling suspended while nothing is tracked
func (c *Coordinator) scheduleNext() {
	c.cancelPoll()
	if !c.started || !c.tracking() {
		return
	}

	c.pollTimer = c.clock.ScheduleAfter(c.config.PollInterval, func() {
		c.pollTimer = nil
		c.Refresh(false)
	})
}

func (c *Coordinator) ensurePolling() {
	if c.inFlight == nil && c.pollTimer == nil {
		c.scheduleNext()
	}
}

func (c *Coordinator) cancelPoll() {
	if c.pollTimer != nil {
		c.pollTimer.Cancel()
		c.pollTimer = nil
	}
}

func (c *Coordinator) isMember(vehicle *ctdf.VehicleState) bool {
	if len(c.routes) > 0 {
		if !slices.Contains(c.routes, vehicle.RouteTag) {
			return false
		}
		return len(c.vehicles) == 0 || slices.Contains(c.vehicles, vehicle.ID)
	}

	return slices.Contains(c.vehicles, vehicle.ID)
}

func (c *Coordinator) removeEntity(id string) {
	entity, ok := c.entities[id]
	if !ok {
		return
	}

	entity.Remove()
	delete(c.entities, id)
	c.cycle.Removed++
}

func (c *Coordinator) detachAll() {
	for id := range c.entities {
		c.removeEntity(id)
	}
}

func (c *Coordinator) pruneNonMembers() {
	for id, entity := range c.entities {
		if !c.isMember(entity.Vehicle()) {
			c.removeEntity(id)
		}
	}
}
