package mqtt_client

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/livemap/pkg/clock"
	"github.com/travigo/livemap/pkg/ctdf"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}
func (doneToken) Error() error { return nil }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mutex    sync.Mutex
	messages []published
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.messages = append(f.messages, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return doneToken{}
}

func (f *fakePublisher) last(t *testing.T) posePayload {
	t.Helper()

	f.mutex.Lock()
	defer f.mutex.Unlock()

	require.NotEmpty(t, f.messages)

	var payload posePayload
	require.NoError(t, json.Unmarshal(f.messages[len(f.messages)-1].payload, &payload))
	return payload
}

func (f *fakePublisher) count() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return len(f.messages)
}

func TestPosePublisher(t *testing.T) {
	c := clock.NewSimulated(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	client := &fakePublisher{}

	publisher := NewPosePublisher(client, c, PosePublisherConfig{MinInterval: time.Second})
	pose := ctdf.Pose{Location: ctdf.NewLocation(43.6453, -79.3806), Heading: 90}

	publisher.OnEntityAdded("4410", pose)
	require.Len(t, client.messages, 1)
	assert.Equal(t, "livemap/vehicles/4410", client.messages[0].topic)
	assert.True(t, client.messages[0].retained)

	payload := client.last(t)
	assert.Equal(t, "4410", payload.ID)
	assert.Equal(t, 43.6453, payload.Latitude)
	assert.Equal(t, -79.3806, payload.Longitude)
	assert.Equal(t, 90.0, payload.Heading)

	// throttled until a second has passed
	c.Advance(500 * time.Millisecond)
	publisher.OnEntityPoseChanged("4410", pose)
	assert.Equal(t, 1, client.count())

	c.Advance(400 * time.Millisecond)
	assert.Equal(t, 1, client.count())

	publisher.OnEntityRemoved("4410")
	require.Equal(t, 2, client.count())
	assert.Empty(t, client.messages[1].payload)
	assert.True(t, client.messages[1].retained)

	// the throttled pose is dropped with the vehicle
	c.Advance(time.Second)
	assert.Equal(t, 2, client.count())

	// a returning vehicle is not throttled by its old publish
	publisher.OnEntityPoseChanged("4410", pose)
	assert.Equal(t, 3, client.count())
}

func TestPosePublisherFlushesFinalPose(t *testing.T) {
	c := clock.NewSimulated(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	client := &fakePublisher{}

	publisher := NewPosePublisher(client, c, PosePublisherConfig{MinInterval: time.Second})
	publisher.OnEntityAdded("4410", ctdf.Pose{Location: ctdf.NewLocation(43.6450, -79.3800), Heading: 90})

	// a frame snapping onto its target inside the throttle window
	for i := 1; i <= 10; i++ {
		c.Advance(50 * time.Millisecond)
		publisher.OnEntityPoseChanged("4410", ctdf.Pose{
			Location: ctdf.NewLocation(43.6450+float64(i)*0.0001, -79.3800),
			Heading:  90 + float64(i),
		})
	}
	assert.Equal(t, 1, client.count())

	c.Advance(500 * time.Millisecond)
	require.Equal(t, 2, client.count())

	payload := client.last(t)
	assert.InDelta(t, 43.6460, payload.Latitude, 1e-9)
	assert.Equal(t, 100.0, payload.Heading)

	c.Advance(5 * time.Second)
	assert.Equal(t, 2, client.count())
}
