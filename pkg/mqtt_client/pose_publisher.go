package mqtt_client

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livemap/pkg/clock"
	"github.com/travigo/livemap/pkg/ctdf"
)

const publishTimeout = 5 * time.Second

// Publisher is the part of mqtt.Client the pose publisher needs
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type posePayload struct {
	ID        string    `json:"id"`
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	Heading   float64   `json:"heading"`
	Timestamp time.Time `json:"timestamp"`
}

type PosePublisherConfig struct {
	TopicPrefix string

	// Pose changes for a vehicle closer together than this are skipped
	MinInterval time.Duration

	QoS byte
}

// PosePublisher is a RenderSink that publishes retained poses to <prefix>/vehicles/<id>.
// Removal publishes an empty retained message so the broker forgets the vehicle.
// A throttled pose is published once the interval has passed, so the retained message always
// ends on the last drawn pose.
type PosePublisher struct {
	client Publisher
	clock  clock.Clock
	config PosePublisherConfig

	lastPublished map[string]time.Time
	pending       map[string]pendingPose
}

type pendingPose struct {
	pose  ctdf.Pose
	flush clock.Handle
}

func NewPosePublisher(client Publisher, c clock.Clock, config PosePublisherConfig) *PosePublisher {
	if config.TopicPrefix == "" {
		config.TopicPrefix = "livemap"
	}

	return &PosePublisher{
		client:        client,
		clock:         c,
		config:        config,
		lastPublished: map[string]time.Time{},
		pending:       map[string]pendingPose{},
	}
}

func (p *PosePublisher) Topic(id string) string {
	return fmt.Sprintf("%s/vehicles/%s", p.config.TopicPrefix, id)
}

func (p *PosePublisher) OnEntityAdded(id string, pose ctdf.Pose) {
	p.publishPose(id, pose)
}

func (p *PosePublisher) OnEntityPoseChanged(id string, pose ctdf.Pose) {
	last, exists := p.lastPublished[id]
	if !exists {
		p.publishPose(id, pose)
		return
	}

	wait := p.config.MinInterval - p.clock.Now().Sub(last)
	if wait <= 0 {
		p.publishPose(id, pose)
		return
	}

	pending, scheduled := p.pending[id]
	pending.pose = pose
	if !scheduled {
		pending.flush = p.clock.ScheduleAfter(wait, func() {
			if latest, ok := p.pending[id]; ok {
				p.publishPose(id, latest.pose)
			}
		})
	}
	p.pending[id] = pending
}

func (p *PosePublisher) OnEntityRemoved(id string) {
	p.cancelPending(id)
	delete(p.lastPublished, id)

	p.publish(id, []byte{})
}

func (p *PosePublisher) cancelPending(id string) {
	if pending, ok := p.pending[id]; ok {
		pending.flush.Cancel()
		delete(p.pending, id)
	}
}

func (p *PosePublisher) publishPose(id string, pose ctdf.Pose) {
	p.cancelPending(id)
	now := p.clock.Now()

	payload, err := json.Marshal(posePayload{
		ID:        id,
		Latitude:  pose.Location.Latitude(),
		Longitude: pose.Location.Longitude(),
		Heading:   pose.Heading,
		Timestamp: now,
	})
	if err != nil {
		log.Error().Err(err).Str("vehicle", id).Msg("Failed to encode pose")
		return
	}

	p.lastPublished[id] = now
	p.publish(id, payload)
}

func (p *PosePublisher) publish(id string, payload []byte) {
	token := p.client.Publish(p.Topic(id), p.config.QoS, true, payload)

	go func() {
		if !token.WaitTimeout(publishTimeout) {
			log.Warn().Str("vehicle", id).Msg("Timed out publishing pose")
			return
		}
		if err := token.Error(); err != nil {
			log.Error().Err(err).Str("vehicle", id).Msg("Failed to publish pose")
		}
	}()
}
