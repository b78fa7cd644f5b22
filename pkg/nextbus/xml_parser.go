package nextbus

import (
	"encoding/xml"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/travigo/livemap/pkg/ctdf"
	"golang.org/x/net/html/charset"
)

type feedBody struct {
	XMLName  xml.Name      `xml:"body"`
	Vehicles []feedVehicle `xml:"vehicle"`
	Routes   []feedRoute   `xml:"route"`
	LastTime *feedLastTime `xml:"lastTime"`
	Errors   []feedError   `xml:"Error"`
}

type feedVehicle struct {
	ID              string `xml:"id,attr"`
	RouteTag        string `xml:"routeTag,attr"`
	DirTag          string `xml:"dirTag,attr"`
	Lat             string `xml:"lat,attr"`
	Lon             string `xml:"lon,attr"`
	SecsSinceReport string `xml:"secsSinceReport,attr"`
	Predictable     string `xml:"predictable,attr"`
	Heading         string `xml:"heading,attr"`
	SpeedKmHr       string `xml:"speedKmHr,attr"`
}

type feedRoute struct {
	Tag   string `xml:"tag,attr"`
	Title string `xml:"title,attr"`
}

type feedLastTime struct {
	Time string `xml:"time,attr"`
}

type feedError struct {
	ShouldRetry string `xml:"shouldRetry,attr"`
	Message     string `xml:",chardata"`
}

func (e feedError) toError() *FeedError {
	return &FeedError{
		Message:     strings.TrimSpace(e.Message),
		ShouldRetry: e.ShouldRetry == "true",
	}
}

func parseBody(reader io.Reader) (*feedBody, error) {
	body := feedBody{}

	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel
	if err := d.Decode(&body); err != nil {
		return nil, err
	}

	return &body, nil
}

// toVehicleState converts a vehicle element, returning ctdf.ErrInvalidLocation when it has no usable position
func (v feedVehicle) toVehicleState(fetchedAt time.Time) (*ctdf.VehicleState, error) {
	secsSinceReport := ctdf.ClampSecsSinceReport(parseNumber(v.SecsSinceReport))

	vehicle := &ctdf.VehicleState{
		ID:              v.ID,
		RouteTag:        v.RouteTag,
		Heading:         ctdf.NormaliseHeading(parseNumber(v.Heading)),
		Location:        ctdf.NewLocation(parseCoordinate(v.Lat), parseCoordinate(v.Lon)),
		Predictable:     v.Predictable != "false",
		SecsSinceReport: secsSinceReport,
		Speed:           parseNumber(v.SpeedKmHr),
		RecordedAt:      fetchedAt.Add(-time.Duration(secsSinceReport) * time.Second),
		DataSource:      DataSource,
	}

	if err := vehicle.Validate(); err != nil {
		return nil, err
	}

	return vehicle, nil
}

// parseNumber treats missing or malformed attributes as zero
func parseNumber(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0
	}

	return parsed
}

func parseCoordinate(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return math.NaN()
	}

	return parsed
}
