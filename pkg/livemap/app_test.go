package livemap

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/livemap/pkg/config"
	"github.com/travigo/livemap/pkg/gtfsrt"
	"github.com/travigo/livemap/pkg/nextbus"
	"github.com/travigo/livemap/pkg/redis_client"
)

const route504 = `<?xml version="1.0" encoding="utf-8" ?>
<body>
<vehicle id="4410" routeTag="504" lat="43.6453" lon="-79.3806" secsSinceReport="4" predictable="true" heading="90" speedKmHr="18"/>
<vehicle id="4402" routeTag="504" lat="43.6490" lon="-79.3776" secsSinceReport="9" predictable="true" heading="270"/>
<lastTime time="1709294400000"/>
</body>`

func withoutBackends(t *testing.T) {
	t.Setenv("TRAVIGO_REDIS_ADDRESS", "")
	t.Setenv("TRAVIGO_ELASTICSEARCH_ADDRESS", "")
	t.Setenv("TRAVIGO_MQTT_BROKER", "")
	t.Cleanup(func() {
		if redis_client.Client != nil {
			redis_client.Client.Close()
			redis_client.Client = nil
		}
	})
}

func TestNewFeed(t *testing.T) {
	cfg := config.Default()

	feed, routeLister, err := NewFeed(&cfg)
	require.NoError(t, err)
	assert.IsType(t, &nextbus.Client{}, feed)
	assert.NotNil(t, routeLister)
	assert.Equal(t, "nextbus/ttc", sourceName(&cfg))

	cfg.Source = config.SourceGTFSRealtime
	cfg.GTFSRealtime.URL = "http://localhost/vehicle-positions"
	feed, routeLister, err = NewFeed(&cfg)
	require.NoError(t, err)
	assert.IsType(t, &gtfsrt.Client{}, feed)
	assert.Nil(t, routeLister)

	cfg.Source = "kafka"
	_, _, err = NewFeed(&cfg)
	assert.Error(t, err)
}

func TestAppFollowsRoutes(t *testing.T) {
	withoutBackends(t)

	mr := miniredis.RunT(t)
	t.Setenv("TRAVIGO_REDIS_ADDRESS", mr.Addr())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("r") == "504" {
			fmt.Fprint(w, route504)
			return
		}
		fmt.Fprint(w, `<body></body>`)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.NextBus.BaseURL = server.URL
	cfg.Routes = []string{"504"}
	cfg.API.Listen = ""

	app, err := New(&cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		return len(app.Manager.Snapshot().Vehicles) == 2
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, []string{"504"}, app.Manager.Routes())
	assert.Eventually(t, func() bool { return app.Index.Size() == 2 }, 5*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool {
		keys, _ := mr.HKeys("livemap:vehicles")
		return len(keys) == 2
	}, 5*time.Second, 20*time.Millisecond)

	pose, ok := app.Manager.Pose("4410")
	require.True(t, ok)
	assert.InDelta(t, 43.6453, pose.Location.Latitude(), 1e-9)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("app did not shut down")
	}

	assert.False(t, mr.Exists("livemap:vehicles"))
}
