package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/livemap/pkg/ctdf"
)

func startHub(t *testing.T) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	server := httptest.NewServer(NewRouter(hub))
	t.Cleanup(func() {
		cancel()
		server.Close()
	})

	return hub, server, cancel
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

// readUntil skips messages until one matches, a replayed add may arrive twice
func readUntil(t *testing.T, conn *websocket.Conn, messageType string, id string) Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var message Message
		require.NoError(t, conn.ReadJSON(&message))

		if message.Type == messageType && message.ID == id {
			return message
		}
	}
}

func TestHubStreamsEntityLifecycle(t *testing.T) {
	hub, server, _ := startHub(t)

	hub.OnEntityAdded("4410", ctdf.Pose{Location: ctdf.NewLocation(43.6453, -79.3806), Heading: 90})

	conn := dial(t, server)
	assert.Eventually(t, func() bool { return hub.ConnectedCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	added := readUntil(t, conn, MessageAdded, "4410")
	require.NotNil(t, added.Pose)
	assert.Equal(t, 90.0, added.Pose.Heading)

	hub.OnEntityPoseChanged("4410", ctdf.Pose{Location: ctdf.NewLocation(43.6460, -79.3800), Heading: 95})
	moved := readUntil(t, conn, MessagePose, "4410")
	assert.InDelta(t, 43.6460, moved.Pose.Location.Latitude(), 1e-9)

	hub.OnEntityRemoved("4410")
	readUntil(t, conn, MessageRemoved, "4410")

	hub.OnSnapshotUpdated(&ctdf.VehicleSnapshot{
		Vehicles: map[string]*ctdf.VehicleState{"4402": {ID: "4402"}},
		Updated:  []string{"4402"},
		Missing:  []string{"9999"},
	})
	snapshot := readUntil(t, conn, MessageSnapshot, "")
	assert.Equal(t, 1, snapshot.Vehicles)
	assert.Equal(t, []string{"4402"}, snapshot.Updated)
	assert.Equal(t, []string{"9999"}, snapshot.Missing)
}

func TestHubReplaysCurrentPoses(t *testing.T) {
	hub, server, _ := startHub(t)

	first := dial(t, server)
	assert.Eventually(t, func() bool { return hub.ConnectedCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	hub.OnEntityAdded("4402", ctdf.Pose{Location: ctdf.NewLocation(43.6490, -79.3776), Heading: 270})
	hub.OnEntityAdded("4410", ctdf.Pose{Location: ctdf.NewLocation(43.6453, -79.3806), Heading: 90})
	hub.OnEntityRemoved("4402")

	// once the first client has seen the removal every broadcast has drained
	readUntil(t, first, MessageRemoved, "4402")

	second := dial(t, server)
	assert.Eventually(t, func() bool { return hub.ConnectedCount() == 2 }, 5*time.Second, 10*time.Millisecond)

	var message Message
	second.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, second.ReadJSON(&message))
	assert.Equal(t, MessageAdded, message.Type)
	assert.Equal(t, "4410", message.ID)
}

func TestHubReplaysLargeMaps(t *testing.T) {
	hub, server, _ := startHub(t)

	vehicles := clientBuffer + 44
	for i := 0; i < vehicles; i++ {
		hub.OnEntityAdded(fmt.Sprintf("%d", 1000+i), ctdf.Pose{Location: ctdf.NewLocation(43.65, -79.38), Heading: 90})
	}
	require.Eventually(t, func() bool { return len(hub.broadcast) == 0 }, 5*time.Second, 10*time.Millisecond)

	conn := dial(t, server)

	seen := map[string]bool{}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for len(seen) < vehicles {
		var message Message
		require.NoError(t, conn.ReadJSON(&message))
		assert.Equal(t, MessageAdded, message.Type)
		seen[message.ID] = true
	}

	assert.Equal(t, 1, hub.ConnectedCount())
}

func TestHubClosesClientsOnShutdown(t *testing.T) {
	hub, server, cancel := startHub(t)

	conn := dial(t, server)
	assert.Eventually(t, func() bool { return hub.ConnectedCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, hub.ConnectedCount())
}

func TestRouter(t *testing.T) {
	_, server, _ := startHub(t)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/stream")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
