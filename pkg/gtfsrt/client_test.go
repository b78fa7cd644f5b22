package gtfsrt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

var fetchedAt = time.Unix(1709294460, 0).UTC()

func vehicleEntity(id string, route string, lat float32, lon float32, timestamp uint64) *gtfs.FeedEntity {
	return &gtfs.FeedEntity{
		Id: proto.String("entity-" + id),
		Vehicle: &gtfs.VehiclePosition{
			Trip:    &gtfs.TripDescriptor{RouteId: proto.String(route)},
			Vehicle: &gtfs.VehicleDescriptor{Id: proto.String(id)},
			Position: &gtfs.Position{
				Latitude:  proto.Float32(lat),
				Longitude: proto.Float32(lon),
				Bearing:   proto.Float32(450),
				Speed:     proto.Float32(10),
			},
			Timestamp: proto.Uint64(timestamp),
		},
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()

	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1709294450),
		},
		Entity: []*gtfs.FeedEntity{
			vehicleEntity("4410", "504", 43.6453, -79.3806, 1709294400),
			vehicleEntity("4402", "504", 43.6490, -79.3776, 1709294440),
			vehicleEntity("8100", "29", 43.6600, -79.4350, 1709294445),
			{Id: proto.String("no-position"), Vehicle: &gtfs.VehiclePosition{Trip: &gtfs.TripDescriptor{RouteId: proto.String("29")}}},
		},
	}
	body, err := proto.Marshal(feed)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		w.Write(body)
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{URL: server.URL, Headers: map[string]string{"apikey": "secret"}})
	client.now = func() time.Time { return fetchedAt }

	return client
}

func TestFetchByRoutes(t *testing.T) {
	client := newTestClient(t)

	batch, err := client.FetchByRoutes(context.Background(), []string{"504"})
	require.NoError(t, err)
	require.Len(t, batch.Vehicles, 2)

	vehicle := batch.Vehicles[0]
	assert.Equal(t, "4410", vehicle.ID)
	assert.Equal(t, "504", vehicle.RouteTag)
	assert.InDelta(t, 90, vehicle.Heading, 1e-9)
	assert.InDelta(t, 36, vehicle.Speed, 1e-6)
	assert.InDelta(t, 43.6453, vehicle.Location.Latitude(), 1e-5)
	assert.Equal(t, 60, vehicle.SecsSinceReport)
	assert.Equal(t, time.Unix(1709294400, 0).UTC(), vehicle.RecordedAt)
	assert.Equal(t, DataSource, vehicle.DataSource)
}

func TestFetchByIDs(t *testing.T) {
	client := newTestClient(t)

	batch, err := client.FetchByIDs(context.Background(), []string{"8100", "0000"})
	require.NoError(t, err)
	require.Len(t, batch.Vehicles, 1)
	assert.Equal(t, "29", batch.Vehicles[0].RouteTag)
}

func TestFetchIncremental(t *testing.T) {
	client := newTestClient(t)

	batch, err := client.FetchIncremental(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, batch.Vehicles, 3)
	assert.Equal(t, "1709294450", batch.ContinuationToken)

	batch, err = client.FetchIncremental(context.Background(), "1709294440")
	require.NoError(t, err)
	require.Len(t, batch.Vehicles, 1)
	assert.Equal(t, "8100", batch.Vehicles[0].ID)

	_, err = client.FetchIncremental(context.Background(), "yesterday")
	assert.Error(t, err)
}

func TestFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	batch, err := NewClient(Config{URL: server.URL}).FetchByRoutes(context.Background(), []string{"29", "504"})
	assert.Error(t, err)
	assert.Equal(t, []string{"29", "504"}, batch.FailedKeys)

	_, err = NewClient(Config{}).FetchIncremental(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingURL)
}
