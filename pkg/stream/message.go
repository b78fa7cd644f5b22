package stream

import "github.com/travigo/livemap/pkg/ctdf"

const (
	MessageAdded    = "added"
	MessagePose     = "pose"
	MessageRemoved  = "removed"
	MessageSnapshot = "snapshot"
)

type Message struct {
	Type string     `json:"type"`
	ID   string     `json:"id,omitempty"`
	Pose *ctdf.Pose `json:"pose,omitempty"`

	Vehicles int      `json:"vehicles,omitempty"`
	Updated  []string `json:"updated,omitempty"`
	Missing  []string `json:"missing,omitempty"`
}
