package stream

import (
	"context"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livemap/pkg/ctdf"
	"golang.org/x/exp/slices"
)

const (
	broadcastBuffer = 1024
	clientBuffer    = 256
)

type client struct {
	conn *websocket.Conn
	send chan Message
}

// Hub fans entity updates out to every connected websocket. It is a RenderSink and
// StatusSink, its callbacks never block the caller.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Message
	register   chan *client
	unregister chan *client
	done       chan struct{}

	mutex sync.Mutex
	poses map[string]ctdf.Pose
	count int
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Message, broadcastBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		poses:      make(map[string]ctdf.Pose),
	}
}

// Run serves the hub until ctx is cancelled, closing every client on the way out
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			close(h.done)
			return
		case c := <-h.register:
			h.clients[c] = true

			h.mutex.Lock()
			h.count = len(h.clients)
			current := make([]Message, 0, len(h.poses))
			for id, pose := range h.poses {
				current = append(current, poseMessage(MessageAdded, id, pose))
			}
			h.mutex.Unlock()

			slices.SortFunc(current, func(a, b Message) int {
				return strings.Compare(a.ID, b.ID)
			})

			for _, message := range current {
				if !h.deliver(c, message) {
					break
				}
			}

			log.Debug().Int("clients", len(h.clients)).Msg("Stream client connected")
		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
				log.Debug().Int("clients", len(h.clients)).Msg("Stream client disconnected")
			}
		case message := <-h.broadcast:
			for c := range h.clients {
				h.deliver(c, message)
			}
		}
	}
}

func (h *Hub) deliver(c *client, message Message) bool {
	select {
	case c.send <- message:
		return true
	default:
		log.Warn().Msg("Stream client too slow, disconnecting")
		h.drop(c)
		return false
	}
}

func (h *Hub) drop(c *client) {
	if !h.clients[c] {
		return
	}

	delete(h.clients, c)

	h.mutex.Lock()
	h.count = len(h.clients)
	h.mutex.Unlock()

	close(c.send)
}

// sendCapacity leaves room for the replay of every drawn vehicle on top of the live buffer
func (h *Hub) sendCapacity() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return len(h.poses) + clientBuffer
}

func (h *Hub) ConnectedCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return h.count
}

func (h *Hub) publish(message Message) {
	select {
	case h.broadcast <- message:
	default:
		log.Warn().Str("type", message.Type).Str("vehicle", message.ID).Msg("Stream broadcast buffer full, dropping message")
	}
}

func (h *Hub) OnEntityAdded(id string, pose ctdf.Pose) {
	h.mutex.Lock()
	h.poses[id] = pose
	h.mutex.Unlock()

	h.publish(poseMessage(MessageAdded, id, pose))
}

func (h *Hub) OnEntityPoseChanged(id string, pose ctdf.Pose) {
	h.mutex.Lock()
	h.poses[id] = pose
	h.mutex.Unlock()

	h.publish(poseMessage(MessagePose, id, pose))
}

func (h *Hub) OnEntityRemoved(id string) {
	h.mutex.Lock()
	delete(h.poses, id)
	h.mutex.Unlock()

	h.publish(Message{Type: MessageRemoved, ID: id})
}

func (h *Hub) OnSnapshotUpdated(snapshot *ctdf.VehicleSnapshot) {
	h.publish(Message{
		Type:     MessageSnapshot,
		Vehicles: len(snapshot.Vehicles),
		Updated:  slices.Clone(snapshot.Updated),
		Missing:  slices.Clone(snapshot.Missing),
	})
}

func poseMessage(messageType string, id string, pose ctdf.Pose) Message {
	pose.Location.Coordinates = slices.Clone(pose.Location.Coordinates)

	return Message{
		Type: messageType,
		ID:   id,
		Pose: &pose,
	}
}
