package render

import (
	"github.com/travigo/livemap/pkg/ctdf"
)

// RenderSink owns the visual representation of every vehicle. Callbacks run on the clock's
// execution context and must not block.
type RenderSink interface {
	OnEntityAdded(id string, pose ctdf.Pose)
	OnEntityPoseChanged(id string, pose ctdf.Pose)
	OnEntityRemoved(id string)
}

// StatusSink is told once per refresh cycle which vehicles are known and which were updated
type StatusSink interface {
	OnSnapshotUpdated(snapshot *ctdf.VehicleSnapshot)
}

type MultiRenderSink []RenderSink

func (m MultiRenderSink) OnEntityAdded(id string, pose ctdf.Pose) {
	for _, sink := range m {
		sink.OnEntityAdded(id, pose)
	}
}

func (m MultiRenderSink) OnEntityPoseChanged(id string, pose ctdf.Pose) {
	for _, sink := range m {
		sink.OnEntityPoseChanged(id, pose)
	}
}

func (m MultiRenderSink) OnEntityRemoved(id string) {
	for _, sink := range m {
		sink.OnEntityRemoved(id)
	}
}

type MultiStatusSink []StatusSink

func (m MultiStatusSink) OnSnapshotUpdated(snapshot *ctdf.VehicleSnapshot) {
	for _, sink := range m {
		sink.OnSnapshotUpdated(snapshot)
	}
}

// Discard drops everything
type Discard struct{}

func (Discard) OnEntityAdded(string, ctdf.Pose) {}
func (Discard) OnEntityPoseChanged(string, ctdf.Pose) {}
func (Discard) OnEntityRemoved(string) {}
func (Discard) OnSnapshotUpdated(*ctdf.VehicleSnapshot) {}
