package routes

import (
	"github.com/gocarina/gocsv"
	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/travigo/livemap/pkg/ctdf"
)

const maxNearbyVehicles = 50

type vehicleRow struct {
	ID              string  `csv:"id"`
	RouteTag        string  `csv:"route_tag"`
	Latitude        float64 `csv:"lat"`
	Longitude       float64 `csv:"lon"`
	Heading         float64 `csv:"heading"`
	Speed           float64 `csv:"speed_kmh"`
	Predictable     bool    `csv:"predictable"`
	SecsSinceReport int     `csv:"secs_since_report"`
	RecordedAt      string  `csv:"recorded_at"`
}

func VehiclesRouter(router fiber.Router, tracker Tracker, index BoundsIndex) {
	router.Get("/", func(c *fiber.Ctx) error {
		return listVehicles(c, tracker, index)
	})
	router.Get("/nearby", func(c *fiber.Ctx) error {
		return listNearbyVehicles(c, index)
	})
	router.Get("/:identifier", func(c *fiber.Ctx) error {
		return getVehicle(c, tracker)
	})
}

func listVehicles(c *fiber.Ctx, tracker Tracker, index BoundsIndex) error {
	bounds, filtered, err := getBoundsQuery(c)
	if err != nil {
		return sendError(c, fiber.StatusBadRequest, err.Error())
	}

	var vehicles []*ctdf.VehicleState
	if filtered {
		vehicles, err = index.Within(bounds)
		if err != nil {
			return sendError(c, fiber.StatusBadRequest, err.Error())
		}
		ctdf.SortVehicles(vehicles)
	} else {
		vehicles = tracker.Snapshot().Ordered()
	}

	return sendVehicles(c, vehicles)
}

func listNearbyVehicles(c *fiber.Ctx, index BoundsIndex) error {
	latitude, latErr := parseFloatQuery(c, "lat")
	longitude, lonErr := parseFloatQuery(c, "lon")
	if latErr != nil || lonErr != nil {
		return sendError(c, fiber.StatusBadRequest, "lat and lon must be provided")
	}

	limit := c.QueryInt("limit", 5)
	if limit < 1 || limit > maxNearbyVehicles {
		return sendError(c, fiber.StatusBadRequest, "limit must be between 1 and 50")
	}

	return sendVehicles(c, index.Nearest(latitude, longitude, limit))
}

func getVehicle(c *fiber.Ctx, tracker Tracker) error {
	identifier := c.Params("identifier")

	vehicle, exists := tracker.Vehicle(identifier)
	if !exists {
		return sendError(c, fiber.StatusNotFound, "Vehicle is not on the map")
	}

	vehicleReduced, err := reduce(c, vehicle)
	if err != nil {
		return sendError(c, fiber.StatusInternalServerError, "Sherrif could not reduce Vehicle")
	}

	response := fiber.Map{
		"vehicle": vehicleReduced,
	}
	if pose, exists := tracker.Pose(identifier); exists {
		response["pose"] = pose
	}

	return c.JSON(response)
}

func sendVehicles(c *fiber.Ctx, vehicles []*ctdf.VehicleState) error {
	switch c.Query("format", "json") {
	case "json":
		if vehicles == nil {
			vehicles = []*ctdf.VehicleState{}
		}

		vehiclesReduced, err := reduce(c, vehicles)
		if err != nil {
			return sendError(c, fiber.StatusInternalServerError, "Sherrif could not reduce Vehicles")
		}

		return c.JSON(vehiclesReduced)
	case "geojson":
		collection := geojson.NewFeatureCollection()
		for _, vehicle := range vehicles {
			feature := geojson.NewFeature(orb.Point{vehicle.Location.Longitude(), vehicle.Location.Latitude()})
			feature.ID = vehicle.ID
			feature.Properties["route_tag"] = vehicle.RouteTag
			feature.Properties["heading"] = vehicle.Heading
			feature.Properties["predictable"] = vehicle.Predictable
			feature.Properties["secs_since_report"] = vehicle.SecsSinceReport

			collection.Append(feature)
		}

		body, err := collection.MarshalJSON()
		if err != nil {
			return sendError(c, fiber.StatusInternalServerError, "Could not encode GeoJSON")
		}

		c.Set(fiber.HeaderContentType, "application/geo+json")
		return c.Send(body)
	case "csv":
		rows := make([]*vehicleRow, 0, len(vehicles))
		for _, vehicle := range vehicles {
			rows = append(rows, &vehicleRow{
				ID:              vehicle.ID,
				RouteTag:        vehicle.RouteTag,
				Latitude:        vehicle.Location.Latitude(),
				Longitude:       vehicle.Location.Longitude(),
				Heading:         vehicle.Heading,
				Speed:           vehicle.Speed,
				Predictable:     vehicle.Predictable,
				SecsSinceReport: vehicle.SecsSinceReport,
				RecordedAt:      vehicle.RecordedAt.Format(timeFormat),
			})
		}

		body, err := gocsv.MarshalBytes(&rows)
		if err != nil {
			return sendError(c, fiber.StatusInternalServerError, "Could not encode CSV")
		}

		c.Set(fiber.HeaderContentType, "text/csv")
		return c.Send(body)
	default:
		return sendError(c, fiber.StatusBadRequest, "format must be one of json, geojson or csv")
	}
}
