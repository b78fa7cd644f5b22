package spatial

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/dhconnelly/rtreego"
)

var (
	ErrMissingBounds = errors.New("a bounds filter must be applied to the request")
	ErrInvalidBounds = errors.New("bounds must contain 4 co-ordinates")
)

// Bounds is a longitude/latitude box
type Bounds struct {
	BottomLeftLon float64
	BottomLeftLat float64
	TopRightLon   float64
	TopRightLat   float64
}

// ParseBounds reads "bottomLeftLon,bottomLeftLat,topRightLon,topRightLat"
func ParseBounds(bounds string) (Bounds, error) {
	if bounds == "" {
		return Bounds{}, ErrMissingBounds
	}

	boundsSplit := strings.Split(bounds, ",")
	if len(boundsSplit) != 4 {
		return Bounds{}, ErrInvalidBounds
	}

	var values [4]float64
	for i, value := range boundsSplit {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return Bounds{}, ErrInvalidBounds
		}
		values[i] = parsed
	}

	b := Bounds{
		BottomLeftLon: values[0],
		BottomLeftLat: values[1],
		TopRightLon:   values[2],
		TopRightLat:   values[3],
	}
	if b.TopRightLon < b.BottomLeftLon || b.TopRightLat < b.BottomLeftLat {
		return Bounds{}, ErrInvalidBounds
	}

	return b, nil
}

func (b Bounds) rect() (rtreego.Rect, error) {
	return rtreego.NewRect(
		rtreego.Point{b.BottomLeftLon, b.BottomLeftLat},
		[]float64{
			max(b.TopRightLon-b.BottomLeftLon, pointTolerance),
			max(b.TopRightLat-b.BottomLeftLat, pointTolerance),
		},
	)
}
