package ctdf

import (
	"errors"
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

const earthRadiusMeters = 6371000.0

var ErrInvalidLocation = errors.New("location must have finite latitude and longitude")

// Location is a GeoJSON style point, Coordinates are stored as [longitude, latitude]
type Location struct {
	Type        string    `json:"-" groups:"basic"`
	Coordinates []float64 `json:"coordinates" groups:"basic"`
}

func NewLocation(latitude float64, longitude float64) Location {
	return Location{
		Type:        "Point",
		Coordinates: []float64{longitude, latitude},
	}
}

func (l Location) Latitude() float64 {
	if len(l.Coordinates) < 2 {
		return math.NaN()
	}
	return l.Coordinates[1]
}

func (l Location) Longitude() float64 {
	if len(l.Coordinates) < 2 {
		return math.NaN()
	}
	return l.Coordinates[0]
}

func (l Location) IsValid() bool {
	lat, lon := l.Latitude(), l.Longitude()

	return !math.IsNaN(lat) && !math.IsInf(lat, 0) && !math.IsNaN(lon) && !math.IsInf(lon, 0)
}

// Interpolate moves linearly from l towards target, each coordinate independently
func (l Location) Interpolate(target Location, fraction float64) Location {
	lat := l.Latitude() + (target.Latitude()-l.Latitude())*fraction
	lon := l.Longitude() + (target.Longitude()-l.Longitude())*fraction

	return NewLocation(lat, lon)
}

// DistanceTo returns the great circle distance in metres
func (l Location) DistanceTo(other Location) float64 {
	a := s2.PointFromLatLng(s2.LatLngFromDegrees(l.Latitude(), l.Longitude()))
	b := s2.PointFromLatLng(s2.LatLngFromDegrees(other.Latitude(), other.Longitude()))

	angle := s1.Angle(s2.ChordAngleBetweenPoints(a, b).Angle())

	return angle.Radians() * earthRadiusMeters
}
