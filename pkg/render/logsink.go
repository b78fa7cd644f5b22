package render

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/travigo/livemap/pkg/ctdf"
)

// LogSink writes entity lifecycle at debug level and every pose at trace level
type LogSink struct {
	Logger *zerolog.Logger
}

func (l LogSink) logger() *zerolog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return &log.Logger
}

func (l LogSink) OnEntityAdded(id string, pose ctdf.Pose) {
	l.logger().Debug().
		Str("vehicle", id).
		Float64("lat", pose.Location.Latitude()).
		Float64("lon", pose.Location.Longitude()).
		Float64("heading", pose.Heading).
		Msg("Vehicle added")
}

func (l LogSink) OnEntityPoseChanged(id string, pose ctdf.Pose) {
	l.logger().Trace().
		Str("vehicle", id).
		Float64("lat", pose.Location.Latitude()).
		Float64("lon", pose.Location.Longitude()).
		Float64("heading", pose.Heading).
		Msg("Vehicle moved")
}

func (l LogSink) OnEntityRemoved(id string) {
	l.logger().Debug().Str("vehicle", id).Msg("Vehicle removed")
}

func (l LogSink) OnSnapshotUpdated(snapshot *ctdf.VehicleSnapshot) {
	l.logger().Info().
		Int("vehicles", len(snapshot.Vehicles)).
		Int("updated", len(snapshot.Updated)).
		Int("missing", len(snapshot.Missing)).
		Msg("Vehicle snapshot updated")
}
