package spatial

import (
	"sync"

	"github.com/dhconnelly/rtreego"
	"github.com/travigo/livemap/pkg/ctdf"
)

const pointTolerance = 1e-9

type indexedVehicle struct {
	vehicle  *ctdf.VehicleState
	envelope rtreego.Rect
}

func (i *indexedVehicle) Bounds() rtreego.Rect {
	return i.envelope
}

// Index answers bounding box and nearest vehicle queries over the latest snapshot. It is a
// StatusSink and is rebuilt on every snapshot.
type Index struct {
	mutex sync.RWMutex
	tree  *rtreego.Rtree
	size  int
}

func NewIndex() *Index {
	return &Index{
		tree: rtreego.NewTree(2, 25, 50),
	}
}

func (i *Index) OnSnapshotUpdated(snapshot *ctdf.VehicleSnapshot) {
	tree := rtreego.NewTree(2, 25, 50)
	size := 0

	for _, vehicle := range snapshot.Vehicles {
		if vehicle == nil || !vehicle.Location.IsValid() {
			continue
		}

		point := rtreego.Point{vehicle.Location.Longitude(), vehicle.Location.Latitude()}
		tree.Insert(&indexedVehicle{
			vehicle:  vehicle,
			envelope: point.ToRect(pointTolerance),
		})
		size++
	}

	i.mutex.Lock()
	i.tree = tree
	i.size = size
	i.mutex.Unlock()
}

func (i *Index) Size() int {
	i.mutex.RLock()
	defer i.mutex.RUnlock()

	return i.size
}

// Within returns the vehicles inside bounds
func (i *Index) Within(bounds Bounds) ([]*ctdf.VehicleState, error) {
	rect, err := bounds.rect()
	if err != nil {
		return nil, err
	}

	i.mutex.RLock()
	results := i.tree.SearchIntersect(rect)
	i.mutex.RUnlock()

	vehicles := make([]*ctdf.VehicleState, 0, len(results))
	for _, result := range results {
		vehicles = append(vehicles, result.(*indexedVehicle).vehicle)
	}

	return vehicles, nil
}

// Nearest returns up to k vehicles closest to the point, nearest first
func (i *Index) Nearest(latitude float64, longitude float64, k int) []*ctdf.VehicleState {
	if k <= 0 {
		return nil
	}

	i.mutex.RLock()
	if k > i.size {
		k = i.size
	}
	results := i.tree.NearestNeighbors(k, rtreego.Point{longitude, latitude})
	i.mutex.RUnlock()

	vehicles := make([]*ctdf.VehicleState, 0, len(results))
	for _, result := range results {
		if result == nil {
			continue
		}
		vehicles = append(vehicles, result.(*indexedVehicle).vehicle)
	}

	return vehicles
}
