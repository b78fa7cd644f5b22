package gtfsrt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livemap/pkg/ctdf"
	"github.com/travigo/livemap/pkg/util"
	"google.golang.org/protobuf/proto"
)

const DataSource = "gtfs-rt"

var ErrMissingURL = errors.New("gtfs-rt vehicle positions url is not configured")

type Config struct {
	URL     string            `yaml:"url" validate:"omitempty,url"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout" validate:"gte=0"`
}

// Client reads a GTFS-Realtime VehiclePositions feed. The feed is always downloaded whole and
// filtered locally.
type Client struct {
	config     Config
	httpClient *http.Client

	now func() time.Time
}

func NewClient(config Config) *Client {
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		now:        time.Now,
	}
}

func (c *Client) FetchByIDs(ctx context.Context, ids []string) (*ctdf.VehicleBatch, error) {
	wanted := toSet(ids)

	return c.fetchFiltered(ctx, ids, func(vehicle *gtfs.VehiclePosition, entity *gtfs.FeedEntity) bool {
		_, ok := wanted[vehicleID(entity)]
		return ok
	})
}

func (c *Client) FetchByRoutes(ctx context.Context, routes []string) (*ctdf.VehicleBatch, error) {
	wanted := toSet(routes)

	return c.fetchFiltered(ctx, routes, func(vehicle *gtfs.VehiclePosition, entity *gtfs.FeedEntity) bool {
		_, ok := wanted[vehicle.GetTrip().GetRouteId()]
		return ok
	})
}

// FetchIncremental returns vehicles that reported after the feed timestamp held in token
func (c *Client) FetchIncremental(ctx context.Context, token string) (*ctdf.VehicleBatch, error) {
	var since uint64
	if token != "" {
		parsed, err := strconv.ParseUint(token, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid continuation token %q: %w", token, err)
		}
		since = parsed
	}

	feed, fetchedAt, err := c.fetchFeed(ctx)
	if err != nil {
		return nil, err
	}

	batch := &ctdf.VehicleBatch{
		ContinuationToken: strconv.FormatUint(feed.GetHeader().GetTimestamp(), 10),
	}
	for _, entity := range feed.GetEntity() {
		vehicle := entity.GetVehicle()
		if vehicle == nil {
			continue
		}

		timestamp := vehicle.GetTimestamp()
		if timestamp == 0 {
			timestamp = feed.GetHeader().GetTimestamp()
		}
		if timestamp <= since {
			continue
		}

		if state, err := toVehicleState(entity, fetchedAt); err == nil {
			batch.Vehicles = append(batch.Vehicles, state)
		}
	}

	return batch, nil
}

func (c *Client) fetchFiltered(ctx context.Context, keys []string, include func(*gtfs.VehiclePosition, *gtfs.FeedEntity) bool) (*ctdf.VehicleBatch, error) {
	keys = util.RemoveDuplicateStrings(keys, nil)
	batch := &ctdf.VehicleBatch{}
	if len(keys) == 0 {
		return batch, nil
	}

	feed, fetchedAt, err := c.fetchFeed(ctx)
	if err != nil {
		batch.FailedKeys = keys
		return batch, err
	}

	for _, entity := range feed.GetEntity() {
		vehicle := entity.GetVehicle()
		if vehicle == nil || !include(vehicle, entity) {
			continue
		}

		state, err := toVehicleState(entity, fetchedAt)
		if err != nil {
			log.Debug().Err(err).Str("vehicle", vehicleID(entity)).Msg("Discarding vehicle position")
			continue
		}
		batch.Vehicles = append(batch.Vehicles, state)
	}

	return batch, nil
}

func (c *Client) fetchFeed(ctx context.Context) (*gtfs.FeedMessage, time.Time, error) {
	if c.config.URL == "" {
		return nil, time.Time{}, ErrMissingURL
	}

	fetchedAt := c.now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL, nil)
	if err != nil {
		return nil, fetchedAt, err
	}
	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fetchedAt, fmt.Errorf("gtfs-rt request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fetchedAt, fmt.Errorf("gtfs-rt request failed: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fetchedAt, err
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fetchedAt, fmt.Errorf("failed parsing gtfs-rt protobuf: %w", err)
	}

	return feed, fetchedAt, nil
}

func toVehicleState(entity *gtfs.FeedEntity, fetchedAt time.Time) (*ctdf.VehicleState, error) {
	vehicle := entity.GetVehicle()
	position := vehicle.GetPosition()
	if position == nil {
		return nil, ctdf.ErrInvalidLocation
	}

	recordedAt := fetchedAt
	if timestamp := vehicle.GetTimestamp(); timestamp > 0 {
		recordedAt = time.Unix(int64(timestamp), 0).UTC()
	}

	secsSinceReport := ctdf.ClampSecsSinceReport(fetchedAt.Sub(recordedAt).Seconds())

	state := &ctdf.VehicleState{
		ID:              vehicleID(entity),
		RouteTag:        vehicle.GetTrip().GetRouteId(),
		Heading:         ctdf.NormaliseHeading(float64(position.GetBearing())),
		Location:        ctdf.NewLocation(float64(position.GetLatitude()), float64(position.GetLongitude())),
		Predictable:     true,
		SecsSinceReport: secsSinceReport,
		Speed:           float64(position.GetSpeed()) * 3.6,
		RecordedAt:      recordedAt,
		DataSource:      DataSource,
	}

	if err := state.Validate(); err != nil {
		return nil, err
	}

	return state, nil
}

func vehicleID(entity *gtfs.FeedEntity) string {
	if id := entity.GetVehicle().GetVehicle().GetId(); id != "" {
		return id
	}

	return entity.GetId()
}

func toSet(keys []string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, key := range keys {
		set[key] = struct{}{}
	}

	return set
}
