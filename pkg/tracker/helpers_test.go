package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/travigo/livemap/pkg/clock"
	"github.com/travigo/livemap/pkg/ctdf"
	"golang.org/x/exp/slices"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var errFeedDown = errors.New("feed down")

type fakeFeed struct {
	mutex sync.Mutex

	vehicles   []*ctdf.VehicleState
	failedKeys map[string]bool
	err        error
	token      string

	gate     chan struct{}
	gateKeys []string

	calls       atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	requests    []string
}

func newFakeFeed(vehicles ...*ctdf.VehicleState) *fakeFeed {
	return &fakeFeed{vehicles: vehicles, failedKeys: map[string]bool{}}
}

func (f *fakeFeed) set(vehicles ...*ctdf.VehicleState) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.vehicles = vehicles
}

func (f *fakeFeed) fail(err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.err = err
}

func (f *fakeFeed) failKey(key string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.failedKeys[key] = true
}

// hold makes every fetch wait until release is called
func (f *fakeFeed) hold() {
	f.holdOnly()
}

// holdOnly makes fetches for exactly these keys wait until release is called, no keys holds every fetch
func (f *fakeFeed) holdOnly(keys ...string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.gate = make(chan struct{})
	f.gateKeys = keys
}

func (f *fakeFeed) release(t *testing.T) {
	t.Helper()

	f.mutex.Lock()
	gate := f.gate
	f.mutex.Unlock()

	select {
	case gate <- struct{}{}:
	case <-time.After(5 * time.Second):
		t.Fatal("no fetch waiting to be released")
	}
}

func (f *fakeFeed) begin(request string, keys []string) {
	f.calls.Add(1)
	current := f.inFlight.Add(1)
	for {
		previous := f.maxInFlight.Load()
		if current <= previous || f.maxInFlight.CompareAndSwap(previous, current) {
			break
		}
	}

	f.mutex.Lock()
	f.requests = append(f.requests, request)
	gate := f.gate
	if len(f.gateKeys) > 0 && !slices.Equal(f.gateKeys, keys) {
		gate = nil
	}
	f.mutex.Unlock()

	if gate != nil {
		<-gate
	}
}

func (f *fakeFeed) end() {
	f.inFlight.Add(-1)
}

func (f *fakeFeed) result(keys []string, match func(vehicle *ctdf.VehicleState, key string) bool) (*ctdf.VehicleBatch, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	batch := &ctdf.VehicleBatch{ContinuationToken: f.token}
	if f.err != nil {
		batch.FailedKeys = keys
		return batch, f.err
	}

	for _, key := range keys {
		if f.failedKeys[key] {
			batch.FailedKeys = append(batch.FailedKeys, key)
			continue
		}

		for _, vehicle := range f.vehicles {
			if match(vehicle, key) {
				batch.Vehicles = append(batch.Vehicles, vehicle)
			}
		}
	}

	return batch, nil
}

func (f *fakeFeed) FetchByIDs(ctx context.Context, ids []string) (*ctdf.VehicleBatch, error) {
	f.begin("ids", ids)
	defer f.end()

	return f.result(ids, func(vehicle *ctdf.VehicleState, id string) bool {
		return vehicle.ID == id
	})
}

func (f *fakeFeed) FetchByRoutes(ctx context.Context, routes []string) (*ctdf.VehicleBatch, error) {
	f.begin("routes", routes)
	defer f.end()

	return f.result(routes, func(vehicle *ctdf.VehicleState, route string) bool {
		return vehicle.RouteTag == route
	})
}

func (f *fakeFeed) FetchIncremental(ctx context.Context, token string) (*ctdf.VehicleBatch, error) {
	f.begin("incremental", []string{token})
	defer f.end()

	return f.result([]string{""}, func(vehicle *ctdf.VehicleState, _ string) bool {
		return true
	})
}

func (f *fakeFeed) requestLog() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]string(nil), f.requests...)
}

type renderEvent struct {
	kind string
	id   string
	pose ctdf.Pose
}

// recordingSink is only touched from the clock's execution context, tests read it through onLoop
type recordingSink struct {
	events    []renderEvent
	snapshots []*ctdf.VehicleSnapshot
	cycles    []Cycle
}

func (r *recordingSink) OnEntityAdded(id string, pose ctdf.Pose) {
	r.events = append(r.events, renderEvent{kind: "added", id: id, pose: pose})
}

func (r *recordingSink) OnEntityPoseChanged(id string, pose ctdf.Pose) {
	r.events = append(r.events, renderEvent{kind: "pose", id: id, pose: pose})
}

func (r *recordingSink) OnEntityRemoved(id string) {
	r.events = append(r.events, renderEvent{kind: "removed", id: id})
}

func (r *recordingSink) OnSnapshotUpdated(snapshot *ctdf.VehicleSnapshot) {
	r.snapshots = append(r.snapshots, snapshot)
}

func (r *recordingSink) OnRefreshCycle(cycle Cycle) {
	r.cycles = append(r.cycles, cycle)
}

func (r *recordingSink) count(kind string, id string) int {
	n := 0
	for _, event := range r.events {
		if event.kind == kind && event.id == id {
			n++
		}
	}
	return n
}

type harness struct {
	clock       *clock.Simulated
	feed        *fakeFeed
	sink        *recordingSink
	coordinator *Coordinator
	manager     *Manager
}

func newHarness(t *testing.T, feed *fakeFeed, configure ...func(*Config)) *harness {
	t.Helper()

	config := DefaultConfig()
	for _, fn := range configure {
		fn(&config)
	}

	c := clock.NewSimulated(epoch)
	sink := &recordingSink{}

	coordinator, err := NewCoordinator(Options{
		Clock:    c,
		Feed:     feed,
		Render:   sink,
		Status:   sink,
		Observer: sink,
		Config:   config,
	})
	require.NoError(t, err)

	h := &harness{
		clock:       c,
		feed:        feed,
		sink:        sink,
		coordinator: coordinator,
		manager:     NewManager(c, coordinator),
	}
	h.manager.Start()

	return h
}

// follow switches to routes and waits for the clearing refresh that follows
func (h *harness) follow(t *testing.T, routes ...string) {
	t.Helper()

	var completion *Completion
	h.onLoop(func() {
		h.coordinator.SetRoutes(routes)
		completion = h.coordinator.inFlight
	})

	if completion != nil {
		require.NoError(t, h.wait(t, completion))
	}
}

// onLoop runs fn on the clock's execution context
func (h *harness) onLoop(fn func()) {
	h.manager.call(fn)
}

func (h *harness) wait(t *testing.T, completion *Completion) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := completion.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)

	return err
}

func (h *harness) entityIDs() []string {
	var ids []string
	h.onLoop(func() {
		for id := range h.coordinator.entities {
			ids = append(ids, id)
		}
	})
	return ids
}

func (h *harness) count(kind string, id string) int {
	var n int
	h.onLoop(func() {
		n = h.sink.count(kind, id)
	})
	return n
}

func (h *harness) cycles() []Cycle {
	var cycles []Cycle
	h.onLoop(func() {
		cycles = append(cycles, h.sink.cycles...)
	})
	return cycles
}

func vehicle(id string, route string, lat float64, lon float64, heading float64) *ctdf.VehicleState {
	return &ctdf.VehicleState{
		ID:          id,
		RouteTag:    route,
		Heading:     heading,
		Location:    ctdf.NewLocation(lat, lon),
		Predictable: true,
		RecordedAt:  epoch,
	}
}
